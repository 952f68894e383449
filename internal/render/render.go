// Package render provides a local terminal preview of a CerberusVerdict,
// wrapping the aggregator's pure markdown renderer with glamour for a
// developer to preview the PR comment body before pushing (spec §12
// "cerberus render --local").
package render

import (
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"cerberus/internal/aggregator"
	"cerberus/internal/model"
)

var (
	passStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	skipStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
)

// Local renders cv for a terminal: a colored verdict banner followed by the
// same markdown body a PR comment would carry, run through glamour.
// wordWrap of 0 or less wraps at 100 columns.
func Local(cv model.CerberusVerdict, wordWrap int) (string, error) {
	banner := verdictBanner(cv.Verdict)

	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if wordWrap > 0 {
		opts = append(opts, glamour.WithWordWrap(wordWrap))
	} else {
		opts = append(opts, glamour.WithWordWrap(100))
	}
	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("render: build terminal renderer: %w", err)
	}

	body, err := renderer.Render(aggregator.RenderMarkdown(cv))
	if err != nil {
		return "", fmt.Errorf("render: render markdown: %w", err)
	}

	return banner + "\n" + body, nil
}

func verdictBanner(v model.Verdict) string {
	label := fmt.Sprintf(" CERBERUS: %s ", v)
	switch v {
	case model.VerdictPass:
		return passStyle.Render(label)
	case model.VerdictWarn:
		return warnStyle.Render(label)
	case model.VerdictFail:
		return failStyle.Render(label)
	default:
		return skipStyle.Render(label)
	}
}
