package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cerberus/internal/aggregator"
	"cerberus/internal/model"
	"cerberus/internal/render"
)

var (
	renderLocal    bool
	renderWordWrap int
)

var renderCmd = &cobra.Command{
	Use:   "render <verdict.json>",
	Short: "Render a CerberusVerdict artifact",
	Long: `render formats a CerberusVerdict JSON artifact. With --local (the
default), it prints a colored terminal preview via glamour so a developer
can review the PR comment body before pushing; without it, it prints the
same markdown the PR-comment upsert layer would post, unstyled.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().BoolVar(&renderLocal, "local", true, "render a styled terminal preview instead of raw markdown")
	renderCmd.Flags().IntVar(&renderWordWrap, "word-wrap", 100, "word-wrap width for the terminal preview")
}

func runRender(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("cerberus: read %s: %w", args[0], err)
	}
	var cv model.CerberusVerdict
	if err := json.Unmarshal(data, &cv); err != nil {
		return fmt.Errorf("cerberus: parse %s: %w", args[0], err)
	}

	if !renderLocal {
		fmt.Fprintln(cmd.OutOrStdout(), aggregator.RenderMarkdown(cv))
		return nil
	}

	out, err := render.Local(cv, renderWordWrap)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
