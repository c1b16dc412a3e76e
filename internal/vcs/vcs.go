// Package vcs lists files changed in a git repository so the
// orchestrator can pre-invalidate affected cache entries.
package vcs

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/rs/zerolog/log"
)

// ChangedFiles returns absolute paths of files that differ between
// the given revision and HEAD, plus anything dirty in the worktree.
// A path that is not a git repository returns an empty list, not an
// error: change awareness is an optimization, never a blocker.
func ChangedFiles(repoPath, sinceRev string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	changed := make(map[string]bool)

	if sinceRev != "" {
		committed, err := diffSince(repo, sinceRev)
		if err != nil {
			return nil, err
		}
		for _, f := range committed {
			changed[f] = true
		}
	}

	dirty, err := worktreeChanges(repo)
	if err != nil {
		return nil, err
	}
	for _, f := range dirty {
		changed[f] = true
	}

	root, err := worktreeRoot(repo)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(changed))
	for f := range changed {
		files = append(files, filepath.Join(root, filepath.FromSlash(f)))
	}

	log.Debug().Int("count", len(files)).Str("since", sinceRev).Msg("collected changed files")
	return files, nil
}

// diffSince lists paths changed between a revision and HEAD
func diffSince(repo *git.Repository, rev string) ([]string, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	since, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %s: %w", rev, err)
	}

	headTree, err := commitTree(repo, head.Hash())
	if err != nil {
		return nil, err
	}
	sinceTree, err := commitTree(repo, *since)
	if err != nil {
		return nil, err
	}

	changes, err := object.DiffTree(sinceTree, headTree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	var files []string
	for _, change := range changes {
		if change.From.Name != "" {
			files = append(files, change.From.Name)
		}
		if change.To.Name != "" && change.To.Name != change.From.Name {
			files = append(files, change.To.Name)
		}
	}
	return files, nil
}

// worktreeChanges lists paths that are modified but not committed
func worktreeChanges(repo *git.Repository) ([]string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}

	var files []string
	for path, st := range status {
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			files = append(files, path)
		}
	}
	return files, nil
}

func worktreeRoot(repo *git.Repository) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	return wt.Filesystem.Root(), nil
}

func commitTree(repo *git.Repository, hash plumbing.Hash) (*object.Tree, error) {
	commit, err := repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", hash, err)
	}
	return commit.Tree()
}
