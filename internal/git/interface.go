// Package git provides an interface for the read-only git queries the
// gates and baseline runner need.
package git

import "context"

// Runner is the git client contract.
type Runner interface {
	// Status returns the output of git status --porcelain.
	Status(ctx context.Context) (string, error)
	// HasChanges returns true if there are uncommitted changes.
	HasChanges(ctx context.Context) (bool, error)
	// ShortHead returns the one-line summary of HEAD (git log --oneline -1).
	ShortHead(ctx context.Context) (string, error)
	// ChangedFiles returns a list of files changed since the base ref.
	ChangedFiles(ctx context.Context, base string) ([]string, error)
}
