package render

import (
	"strings"
	"testing"

	"cerberus/internal/model"
)

func TestLocal_RendersWithoutError(t *testing.T) {
	cv := model.CerberusVerdict{
		Verdict: model.VerdictFail,
		HeadSHA: "deadbeef",
		ReviewerVerdicts: []model.ReviewerVerdict{
			{Reviewer: "sentinel", Perspective: "security", Verdict: model.VerdictFail, Summary: "blocking issue found"},
		},
	}

	out, err := Local(cv, 80)
	if err != nil {
		t.Fatalf("Local: %v", err)
	}
	if !strings.Contains(out, "CERBERUS") {
		t.Fatal("expected the verdict banner to be present")
	}
}

func TestLocal_ZeroWordWrapUsesDefault(t *testing.T) {
	cv := model.CerberusVerdict{Verdict: model.VerdictPass}
	if _, err := Local(cv, 0); err != nil {
		t.Fatalf("Local with wordWrap=0: %v", err)
	}
}
