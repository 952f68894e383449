package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cerberus/internal/model"
	"cerberus/internal/prstate"
	"cerberus/internal/triage"
)

var (
	triageVerdictPath  string
	triagePRState      string
	triageTrigger      string
	triageMode         string
	triageBotLogin     string
	triageMaxAttempts  int
	triageStaleHours   float64
	triageKillSwitch   bool
	triageFixBinary    string
	triageFixArgs      []string
	triageFixWorkDir   string
	triageFixAuthor    string
	triageFixEmail     string
)

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Decide whether a failing PR should trigger an automated fix attempt",
	Long: `triage implements the Triage Guard (C6): given the latest CerberusVerdict
on HEAD and a PRState snapshot, it returns one of {disabled, skip, diagnose,
fix} per the §4.6 circuit-breaker rules and prints it. When the mode is fix,
it also runs the --fix-binary command in --fix-workdir via triage.RunFix,
which commits any tracked changes under a [triage]-tagged message, and then
prints the per-run triage marker and the fix outcome.`,
	RunE: runTriage,
}

func init() {
	triageCmd.Flags().StringVar(&triageVerdictPath, "verdict", "", "path to the latest CerberusVerdict JSON (required)")
	triageCmd.Flags().StringVar(&triagePRState, "pr-state", "", "path to a PRState snapshot JSON document (required)")
	triageCmd.Flags().StringVar(&triageTrigger, "trigger", "automatic", "automatic|comment|schedule")
	triageCmd.Flags().StringVar(&triageMode, "mode", "diagnose", "requested mode when automatic and eligible: diagnose|fix")
	triageCmd.Flags().StringVar(&triageBotLogin, "bot-login", "cerberus-bot", "the trusted bot login whose comments count for the circuit breaker")
	triageCmd.Flags().IntVar(&triageMaxAttempts, "max-attempts", 3, "max triage attempts per HEAD commit")
	triageCmd.Flags().Float64Var(&triageStaleHours, "stale-hours", 24, "minimum verdict age (hours) before a scheduled trigger fires")
	triageCmd.Flags().BoolVar(&triageKillSwitch, "disabled", false, "global kill switch")
	triageCmd.Flags().StringVar(&triageFixBinary, "fix-binary", "", "trusted fix command to run when mode resolves to fix (spec §4.6)")
	triageCmd.Flags().StringArrayVar(&triageFixArgs, "fix-arg", nil, "argument to the fix command (repeatable)")
	triageCmd.Flags().StringVar(&triageFixWorkDir, "fix-workdir", "", "checkout directory the fix command and git commit run in")
	triageCmd.Flags().StringVar(&triageFixAuthor, "fix-author", "cerberus-bot", "git author name for an automated fix commit")
	triageCmd.Flags().StringVar(&triageFixEmail, "fix-email", "cerberus-bot@users.noreply.github.com", "git author email for an automated fix commit")
	triageCmd.MarkFlagRequired("verdict")
	triageCmd.MarkFlagRequired("pr-state")
}

func runTriage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	verdictData, err := os.ReadFile(triageVerdictPath)
	if err != nil {
		return fmt.Errorf("cerberus: read verdict %s: %w", triageVerdictPath, err)
	}
	var cv model.CerberusVerdict
	if err := json.Unmarshal(verdictData, &cv); err != nil {
		return fmt.Errorf("cerberus: parse verdict %s: %w", triageVerdictPath, err)
	}

	pr, err := prstate.LoadSnapshot(triagePRState)
	if err != nil {
		return err
	}

	req := triage.Request{
		Trigger:         triage.Trigger(triageTrigger),
		KillSwitch:      triageKillSwitch,
		TrustedBotLogin: triageBotLogin,
		MaxAttempts:     triageMaxAttempts,
		StaleAfter:      time.Duration(triageStaleHours * float64(time.Hour)),
		RequestedMode:   triage.Mode(triageMode),
	}

	mode, err := triage.Decide(ctx, req, cv, pr)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	marker := triage.TriageCommentMarker(pr.HeadSHA(), runID)

	logger.Info("triage decision", zap.String("mode", string(mode)), zap.String("marker", marker))
	fmt.Fprintln(cmd.OutOrStdout(), mode)

	if mode != triage.ModeFix {
		// diagnose is explicitly "no write" (spec §4.6 mode selection);
		// skip/disabled mean the guard did nothing. Only a fix attempt
		// prints the triage marker, after it actually runs.
		return nil
	}

	if triageFixBinary == "" {
		return fmt.Errorf("cerberus: mode resolved to fix but --fix-binary was not set")
	}

	result, err := triage.RunFix(ctx, triage.FixRequest{
		Binary:       triageFixBinary,
		Args:         triageFixArgs,
		WorkDir:      triageFixWorkDir,
		HeadSHA:      pr.HeadSHA(),
		CommitAuthor: triageFixAuthor,
		CommitEmail:  triageFixEmail,
	})
	if err != nil {
		return err
	}

	logger.Info("fix attempt finished", zap.String("outcome", string(result.Outcome)), zap.String("commit", result.Commit))
	fmt.Fprintln(cmd.OutOrStdout(), marker)
	fmt.Fprintln(cmd.OutOrStdout(), result.Outcome)
	return nil
}
