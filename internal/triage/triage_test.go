package triage

import (
	"context"
	"testing"
	"time"

	"cerberus/internal/model"
	"cerberus/internal/prstate"
)

func baseReq() Request {
	return Request{
		Trigger:         TriggerAutomatic,
		TrustedBotLogin: "cerberus-bot",
		MaxAttempts:     3,
		StaleAfter:      24 * time.Hour,
	}
}

func withVerdictComment(pr *prstate.Fake) {
	pr.AddComment("cerberus-bot", "<!-- cerberus:verdict -->\n## Cerberus: FAIL\n")
}

func TestDecide_KillSwitch(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	mode, err := Decide(context.Background(), Request{KillSwitch: true}, model.CerberusVerdict{}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeDisabled {
		t.Fatalf("mode = %v, want disabled", mode)
	}
}

func TestDecide_NoTrustedVerdictCommentIsSkip(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	mode, err := Decide(context.Background(), baseReq(), model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeSkip {
		t.Fatalf("mode = %v, want skip when no trusted verdict comment exists", mode)
	}
}

func TestDecide_NonFailVerdictIsSkip(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	withVerdictComment(pr)
	mode, err := Decide(context.Background(), baseReq(), model.CerberusVerdict{Verdict: model.VerdictWarn}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeSkip {
		t.Fatalf("mode = %v, want skip for a non-FAIL verdict", mode)
	}
}

func TestDecide_MaxAttemptsReachedIsSkip(t *testing.T) {
	pr := prstate.NewFake("deadbeefcafe")
	withVerdictComment(pr)
	for i := 0; i < 3; i++ {
		pr.AddComment("cerberus-bot", "<!-- cerberus:triage sha=deadbee run=run"+string(rune('a'+i))+" -->")
	}
	mode, err := Decide(context.Background(), baseReq(), model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeSkip {
		t.Fatalf("mode = %v, want skip once max attempts is reached", mode)
	}
}

// S7: a prior "[triage]" commit on HEAD trips the circuit breaker.
func TestDecide_TriageCommitMessageMarkerIsSkip(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	pr.CommitMessage = "fix: address review feedback [triage]"
	withVerdictComment(pr)
	mode, err := Decide(context.Background(), baseReq(), model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeSkip {
		t.Fatalf("mode = %v, want skip when HEAD's own commit message carries the [triage] tag", mode)
	}
}

func TestDecide_ScheduleTriggerRespectsStaleness(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	withVerdictComment(pr)
	req := baseReq()
	req.Trigger = TriggerSchedule
	req.VerdictCommentAge = 1 * time.Hour // younger than StaleAfter (24h)

	mode, err := Decide(context.Background(), req, model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeSkip {
		t.Fatalf("mode = %v, want skip for a fresh verdict on a scheduled trigger", mode)
	}

	req.VerdictCommentAge = 48 * time.Hour
	mode, err = Decide(context.Background(), req, model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode == ModeSkip {
		t.Fatal("expected a stale scheduled verdict to proceed past the staleness check")
	}
}

func TestDecide_CommentTriggerForcesDiagnose(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	withVerdictComment(pr)
	req := baseReq()
	req.Trigger = TriggerComment
	req.RequestedMode = ModeFix

	mode, err := Decide(context.Background(), req, model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeDiagnose {
		t.Fatalf("mode = %v, want diagnose for a non-automatic trigger regardless of requested mode", mode)
	}
}

func TestDecide_ForkForcesDiagnose(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	pr.Fork = true
	withVerdictComment(pr)
	req := baseReq()
	req.RequestedMode = ModeFix

	mode, err := Decide(context.Background(), req, model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeDiagnose {
		t.Fatalf("mode = %v, want diagnose on a fork", mode)
	}
}

func TestDecide_NonGitCheckoutForcesDiagnose(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	pr.GitCheckout = false
	withVerdictComment(pr)
	req := baseReq()
	req.RequestedMode = ModeFix

	mode, err := Decide(context.Background(), req, model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeDiagnose {
		t.Fatalf("mode = %v, want diagnose without a real git checkout", mode)
	}
}

func TestDecide_AutomaticFixEligiblePathReturnsFix(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	withVerdictComment(pr)
	req := baseReq()
	req.RequestedMode = ModeFix

	mode, err := Decide(context.Background(), req, model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeFix {
		t.Fatalf("mode = %v, want fix on a clean automatic, eligible path", mode)
	}
}

func TestDecide_AutomaticDiagnoseRequestedStaysDiagnose(t *testing.T) {
	pr := prstate.NewFake("deadbeef")
	withVerdictComment(pr)
	req := baseReq()
	req.RequestedMode = ModeDiagnose

	mode, err := Decide(context.Background(), req, model.CerberusVerdict{Verdict: model.VerdictFail}, pr)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if mode != ModeDiagnose {
		t.Fatalf("mode = %v, want diagnose when that's what was requested", mode)
	}
}

func TestCountTriageAttempts_OnlyCountsTrustedBotAndMatchingHead(t *testing.T) {
	pr := prstate.NewFake("deadbeefcafe")
	pr.AddComment("cerberus-bot", "<!-- cerberus:triage sha=deadbee run=run1 -->")
	pr.AddComment("someone-else", "<!-- cerberus:triage sha=deadbee run=run2 -->") // untrusted author
	pr.AddComment("cerberus-bot", "<!-- cerberus:triage sha=ffffff0 run=run3 -->") // stale head

	got := countTriageAttempts(pr.CommentList, "cerberus-bot", pr.HeadSHA())
	if got != 1 {
		t.Fatalf("countTriageAttempts = %d, want 1", got)
	}
}

func TestTriageCommentMarker_TruncatesSHAToSevenChars(t *testing.T) {
	got := TriageCommentMarker("deadbeefcafefeed", "run-123")
	want := "<!-- cerberus:triage sha=deadbee run=run-123 -->"
	if got != want {
		t.Fatalf("TriageCommentMarker = %q, want %q", got, want)
	}
}
