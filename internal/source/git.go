package source

import (
	"context"

	"github.com/deploymenttheory/go-recipe-runner/internal/logger"
	"github.com/deploymenttheory/go-recipe-runner/internal/recipe"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// cloneGit makes a shallow single-branch checkout of src in dest.
func (f *Fetcher) cloneGit(ctx context.Context, src recipe.Source, dest string) error {
	opts := &git.CloneOptions{
		URL:          src.URL,
		Depth:        1,
		SingleBranch: true,
		Tags:         git.NoTags,
	}
	if src.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(src.Branch)
	}

	repo, err := git.PlainCloneContext(ctx, dest, false, opts)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"url":    src.URL,
		"branch": src.Branch,
	}
	if head, err := repo.Head(); err == nil {
		fields["commit"] = head.Hash().String()
	}
	logger.LogInfo("Cloned source repository", fields)

	return nil
}
