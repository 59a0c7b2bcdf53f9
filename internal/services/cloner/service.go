// Package cloner materializes git repositories: project repos, wiki repos and
// snippet repos, with all branches and submodules.
package cloner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/rs/zerolog"
)

// CloneError reports a repository materialization failure.
type CloneError struct {
	URL string
	Err error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("cloning %s: %v", e.URL, e.Err)
}

func (e *CloneError) Unwrap() error {
	return e.Err
}

// IsMissingRepo reports whether err means the remote repository does not
// exist, is empty, or is hidden behind authorization. These are the shapes
// GitLab answers with for absent wiki and snippet repos.
func IsMissingRepo(err error) bool {
	return errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, transport.ErrAuthorizationFailed)
}

// Result describes one completed clone.
type Result struct {
	Branches   int
	Submodules int
}

// Service defines the clone operations.
type Service interface {
	Clone(ctx context.Context, url, dest string) (*Result, error)
	CloneWiki(ctx context.Context, webURL, dest string) (*Result, bool, error)
}

// Git abstracts the underlying git operations for mocking.
type Git interface {
	Clone(ctx context.Context, url, dest string) (Repository, error)
}

// Repository is the handle the cloner works on after the initial clone.
type Repository interface {
	FetchAll(ctx context.Context) error
	MaterializeBranches() (int, error)
	UpdateSubmodules(ctx context.Context) (int, error)
}

// Impl implements the cloner Service interface.
type Impl struct {
	git    Git
	logger zerolog.Logger
}

// New creates a cloner authenticating with the given API token.
func New(logger zerolog.Logger, token string) *Impl {
	return NewWithGit(logger, &defaultGit{auth: &githttp.BasicAuth{Username: "oauth2", Password: token}})
}

// NewWithGit creates a cloner with a custom git backend (for testing).
func NewWithGit(logger zerolog.Logger, g Git) *Impl {
	return &Impl{git: g, logger: logger}
}

// Clone materializes the repository at url into dest: initial clone (or fetch
// into an existing clone from a previous run), all remote branches tracked
// locally, submodules initialized recursively.
func (s *Impl) Clone(ctx context.Context, url, dest string) (*Result, error) {
	s.logger.Info().Str("url", url).Str("dest", dest).Msg("cloning repository")

	repo, err := s.git.Clone(ctx, url, dest)
	if err != nil {
		return nil, &CloneError{URL: url, Err: err}
	}

	if err := repo.FetchAll(ctx); err != nil {
		return nil, &CloneError{URL: url, Err: err}
	}

	result := &Result{}
	if result.Branches, err = repo.MaterializeBranches(); err != nil {
		return nil, &CloneError{URL: url, Err: err}
	}
	if result.Submodules, err = repo.UpdateSubmodules(ctx); err != nil {
		return nil, &CloneError{URL: url, Err: err}
	}

	s.logger.Info().
		Str("url", url).
		Int("branches", result.Branches).
		Int("submodules", result.Submodules).
		Msg("clone completed")
	return result, nil
}

// CloneWiki clones the wiki repository attached to a project or group web
// URL. A missing or empty wiki is not an error; the second return reports
// whether a wiki existed.
func (s *Impl) CloneWiki(ctx context.Context, webURL, dest string) (*Result, bool, error) {
	url := strings.TrimRight(webURL, "/") + ".wiki.git"
	result, err := s.Clone(ctx, url, dest)
	if err != nil {
		if IsMissingRepo(err) {
			s.logger.Debug().Str("url", url).Msg("no wiki repository")
			return nil, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

// defaultGit implements Git on go-git.
type defaultGit struct {
	auth transport.AuthMethod
}

func (g *defaultGit) Clone(ctx context.Context, url, dest string) (Repository, error) {
	storer := filesystem.NewStorage(
		osfs.New(filepath.Join(dest, git.GitDirName)),
		cache.NewObjectLRUDefault(),
	)
	worktree := osfs.New(dest)

	repo, err := git.CloneContext(ctx, storer, worktree, &git.CloneOptions{
		URL:  url,
		Auth: g.auth,
	})
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		// Re-run over an existing backup: open and refresh instead.
		repo, err = git.Open(storer, worktree)
	}
	if err != nil {
		return nil, err
	}
	return &defaultRepo{repo: repo, auth: g.auth}, nil
}

type defaultRepo struct {
	repo *git.Repository
	auth transport.AuthMethod
}

func (r *defaultRepo) FetchAll(ctx context.Context) error {
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Tags:     git.AllTags,
		Auth:     r.auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// MaterializeBranches creates a local branch for every remote one so the
// backup remains usable without its origin.
func (r *defaultRepo) MaterializeBranches() (int, error) {
	refs, err := r.repo.References()
	if err != nil {
		return 0, err
	}

	count := 0
	prefix := "refs/remotes/origin/"
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().String()
		if !strings.HasPrefix(name, prefix) {
			return nil
		}
		short := strings.TrimPrefix(name, prefix)
		if short == "HEAD" {
			return nil
		}
		count++

		local := plumbing.NewBranchReferenceName(short)
		if _, err := r.repo.Reference(local, false); err == nil {
			return nil
		}
		return r.repo.Storer.SetReference(plumbing.NewHashReference(local, ref.Hash()))
	})
	return count, err
}

func (r *defaultRepo) UpdateSubmodules(ctx context.Context) (int, error) {
	worktree, err := r.repo.Worktree()
	if err != nil {
		return 0, err
	}
	submodules, err := worktree.Submodules()
	if err != nil {
		return 0, err
	}
	if len(submodules) == 0 {
		return 0, nil
	}
	err = submodules.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: git.DefaultSubmoduleRecursionDepth,
		Auth:              r.auth,
	})
	return len(submodules), err
}
