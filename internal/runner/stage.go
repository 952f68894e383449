package runner

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// StagedFile describes one trusted file staged into the consumer workspace
// so the LLM CLI's auto-discovery finds it (spec §4.3.2: "a scoped working
// tree... the CLI's auto-discovered project config and agent definition are
// temporarily staged from trusted locations, then restored on exit").
type StagedFile struct {
	// TargetPath is where the CLI expects to find the file, relative to
	// the workspace root (e.g. ".cerberus/agent.json").
	TargetPath string
	// SourcePath is the trusted on-disk file staged from.
	SourcePath string
}

// WorkspaceStage stages trusted files into a consumer workspace and
// restores the pre-staging state afterward, following the same
// stage-backup/rollback shape as a file transaction: back up whatever was
// there before (if anything), write the trusted content, then put the
// original back — or remove the staged file if nothing was there — once
// the reviewer invocation is done.
type WorkspaceStage struct {
	root    string
	backups map[string]string      // target path -> temp backup path
	modes   map[string]fs.FileMode // target path -> original mode
	created map[string]struct{}    // target paths that did not exist before staging
}

// NewWorkspaceStage returns a stage rooted at the consumer workspace root.
func NewWorkspaceStage(root string) *WorkspaceStage {
	return &WorkspaceStage{
		root:    root,
		backups: make(map[string]string),
		modes:   make(map[string]fs.FileMode),
		created: make(map[string]struct{}),
	}
}

// Stage copies each file's trusted SourcePath over its TargetPath inside
// the workspace, backing up any pre-existing content at TargetPath first.
// It refuses to stage over a symlink or any non-regular file at
// TargetPath — overwriting one could follow an attacker-controlled link
// out of the workspace — and rolls back everything already staged in this
// call before returning the error.
func (s *WorkspaceStage) Stage(files []StagedFile) error {
	for _, f := range files {
		target := filepath.Join(s.root, f.TargetPath)
		if err := s.stageOne(target, f.SourcePath); err != nil {
			s.Restore()
			return fmt.Errorf("runner: stage %s: %w", f.TargetPath, err)
		}
	}
	return nil
}

func (s *WorkspaceStage) stageOne(target, source string) error {
	info, err := os.Lstat(target)
	switch {
	case err == nil:
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("refusing to overwrite symlink at %s", target)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("refusing to overwrite non-regular file at %s", target)
		}
		if err := s.backup(target, info.Mode()); err != nil {
			return err
		}
	case os.IsNotExist(err):
		s.created[target] = struct{}{}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
	default:
		return err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

func (s *WorkspaceStage) backup(target string, mode fs.FileMode) error {
	backup, err := os.CreateTemp("", "cerberus_stage_backup_*")
	if err != nil {
		return err
	}
	defer backup.Close()

	original, err := os.Open(target)
	if err != nil {
		return err
	}
	defer original.Close()

	if _, err := io.Copy(backup, original); err != nil {
		return err
	}
	s.backups[target] = backup.Name()
	s.modes[target] = mode
	return nil
}

// Restore puts the staged files back as Stage found them: pre-existing
// files are restored from backup, files that did not exist before staging
// are removed (spec §4.3.2, invariant P7). Parent directories that Stage
// created to hold a new file are not removed.
func (s *WorkspaceStage) Restore() {
	for target, backup := range s.backups {
		if data, err := os.ReadFile(backup); err == nil {
			_ = os.WriteFile(target, data, s.modes[target])
		}
		_ = os.Remove(backup)
	}
	for target := range s.created {
		_ = os.Remove(target)
	}
	s.backups = make(map[string]string)
	s.modes = make(map[string]fs.FileMode)
	s.created = make(map[string]struct{})
}
