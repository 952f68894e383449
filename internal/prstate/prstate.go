// Package prstate abstracts PR state (HEAD commit, comments, permissions)
// behind a capability interface so the aggregator and triage guard depend
// on that interface rather than a network client (spec §9).
package prstate

import (
	"context"
	"time"
)

// Permission is a commenter's repository access level.
type Permission string

const (
	PermissionNone  Permission = "none"
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionAdmin Permission = "admin"
	// PermissionMaintain covers maintainers who are not full admins but are
	// trusted for maintainers_only override policies.
	PermissionMaintain Permission = "maintain"
)

// Comment is one PR comment, trimmed to the fields the pipeline needs.
type Comment struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
}

// PRState is the capability the aggregator and triage guard depend on.
type PRState interface {
	// HeadSHA returns the full HEAD commit SHA of the PR at call time.
	HeadSHA() string
	// HeadCommitMessage returns the HEAD commit's message (used by the
	// triage guard to detect a prior "[triage]"-tagged commit).
	HeadCommitMessage() string
	// Comments returns all PR comments in chronological order.
	Comments(ctx context.Context) ([]Comment, error)
	// Permission returns login's access level on the repository.
	Permission(ctx context.Context, login string) (Permission, error)
	// IsFork reports whether the PR's head repository differs from the
	// target repository.
	IsFork() bool
	// IsGitCheckout reports whether the working tree is a true git checkout
	// (as opposed to, e.g., a tarball export).
	IsGitCheckout() bool
	// PRAuthor returns the PR's author login.
	PRAuthor() string
}

// Fake is an in-memory PRState for tests.
type Fake struct {
	SHA            string
	CommitMessage  string
	CommentList    []Comment
	Permissions    map[string]Permission
	Fork           bool
	GitCheckout    bool
	Author         string
}

// NewFake returns a Fake with sensible defaults (non-fork, real checkout).
func NewFake(sha string) *Fake {
	return &Fake{
		SHA:         sha,
		Permissions: make(map[string]Permission),
		GitCheckout: true,
	}
}

func (f *Fake) HeadSHA() string            { return f.SHA }
func (f *Fake) HeadCommitMessage() string  { return f.CommitMessage }
func (f *Fake) IsFork() bool               { return f.Fork }
func (f *Fake) IsGitCheckout() bool        { return f.GitCheckout }
func (f *Fake) PRAuthor() string           { return f.Author }

func (f *Fake) Comments(ctx context.Context) ([]Comment, error) {
	return f.CommentList, nil
}

func (f *Fake) Permission(ctx context.Context, login string) (Permission, error) {
	if p, ok := f.Permissions[login]; ok {
		return p, nil
	}
	return PermissionNone, nil
}

// AddComment appends a comment authored by author.
func (f *Fake) AddComment(author, body string) {
	f.CommentList = append(f.CommentList, Comment{
		ID:     "c" + author + body[:min(4, len(body))],
		Author: author,
		Body:   body,
	})
}
