// Package walker expands the group/subgroup/project hierarchy into a stream
// of backup tasks.
package walker

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/glsafe/glsafe/internal/gitlab"
	"github.com/glsafe/glsafe/internal/models"
)

// Lister is the subset of the fetcher the walker needs.
type Lister interface {
	GetGroup(ctx context.Context, id int) (gitlab.Group, error)
	GetProject(ctx context.Context, id int) (gitlab.Project, error)
	ListTopGroups(ctx context.Context, fn func(gitlab.Group) error) error
	ListSubgroups(ctx context.Context, groupID int, fn func(gitlab.Group) error) error
	ListGroupProjects(ctx context.Context, groupID int, fn func(gitlab.Project) error) error
	ListUserProjects(ctx context.Context, userID int, fn func(gitlab.Project) error) error
}

// EmitFunc consumes one task; returning an error stops the walk.
type EmitFunc func(models.BackupTask) error

// Service defines the tree walking operation.
type Service interface {
	Walk(ctx context.Context, userID int, emit EmitFunc) error
}

// Impl implements the walker Service interface.
type Impl struct {
	lister Lister
	scope  models.ScopeConfig
	parts  models.Parts
	logger zerolog.Logger
}

// New creates a new walker service.
func New(logger zerolog.Logger, lister Lister, scope models.ScopeConfig, parts models.Parts) *Impl {
	return &Impl{
		lister: lister,
		scope:  scope,
		parts:  parts,
		logger: logger,
	}
}

// node is one group queued for expansion together with its ancestor id chain.
type node struct {
	group   gitlab.Group
	parents []int
}

// Walk traverses the configured scope breadth-first and emits one task per
// distinct project plus one group-level task per group with wiki backup
// enabled. The group graph may be a DAG (shared projects, reused subgroups),
// so every node is visited at most once, keyed by id. Order is the API
// listing order, deterministic for identical remote state. userID is the
// token owner, used for personal projects.
func (s *Impl) Walk(ctx context.Context, userID int, emit EmitFunc) error {
	w := &walk{Impl: s, emit: emit,
		seenGroups:   make(map[int]struct{}),
		seenProjects: make(map[int]struct{}),
	}

	queue, err := s.seedGroups(ctx)
	if err != nil {
		return err
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		head := queue[0]
		queue = queue[1:]

		next, err := w.expand(ctx, head)
		if err != nil {
			return err
		}
		queue = append(queue, next...)
	}

	for _, id := range s.scope.ProjectIDs {
		project, err := s.lister.GetProject(ctx, id)
		if err != nil {
			s.logger.Warn().Int("project_id", id).Err(err).Msg("skipping unreachable project")
			continue
		}
		if err := w.emitProject(project, nil); err != nil {
			return err
		}
	}

	if s.scope.IncludePersonal {
		err := s.lister.ListUserProjects(ctx, userID, func(p gitlab.Project) error {
			return w.emitProject(p, nil)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// seedGroups resolves the configured roots: explicit group ids, or every
// accessible top-level group.
func (s *Impl) seedGroups(ctx context.Context) ([]node, error) {
	var queue []node
	if len(s.scope.GroupIDs) > 0 {
		for _, id := range s.scope.GroupIDs {
			group, err := s.lister.GetGroup(ctx, id)
			if err != nil {
				s.logger.Warn().Int("group_id", id).Err(err).Msg("skipping unreachable group")
				continue
			}
			queue = append(queue, node{group: group})
		}
		return queue, nil
	}
	if !s.scope.AllAccessible {
		return nil, nil
	}
	err := s.lister.ListTopGroups(ctx, func(g gitlab.Group) error {
		queue = append(queue, node{group: g})
		return nil
	})
	return queue, err
}

// walk holds the traversal state for one Walk call.
type walk struct {
	*Impl
	emit         EmitFunc
	seenGroups   map[int]struct{}
	seenProjects map[int]struct{}
}

// expand visits one group: emits its group-level task, collects subgroups for
// the queue and emits a task per unseen project.
func (w *walk) expand(ctx context.Context, n node) ([]node, error) {
	g := n.group
	if _, ok := w.seenGroups[g.ID]; ok {
		return nil, nil
	}
	w.seenGroups[g.ID] = struct{}{}

	w.logger.Info().Str("group", g.FullPath).Int("id", g.ID).Msg("found group")

	if w.parts.Wiki {
		task := models.BackupTask{
			Ref: models.ResourceRef{
				Kind:      models.KindGroup,
				ID:        g.ID,
				ParentIDs: n.parents,
				FullPath:  g.FullPath,
			},
			Parts: models.Parts{Wiki: true},
		}
		if err := w.emit(task); err != nil {
			return nil, err
		}
	}

	chain := append(append([]int{}, n.parents...), g.ID)

	var next []node
	err := w.lister.ListSubgroups(ctx, g.ID, func(sub gitlab.Group) error {
		if sub.ID == g.ID {
			w.logger.Warn().Str("group", g.FullPath).Int("id", g.ID).
				Msg("group lists itself as its own subgroup, skipping")
			return nil
		}
		if _, ok := w.seenGroups[sub.ID]; ok {
			w.logger.Debug().Str("group", sub.FullPath).Int("id", sub.ID).
				Msg("subgroup already visited")
			return nil
		}
		next = append(next, node{group: sub, parents: chain})
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = w.lister.ListGroupProjects(ctx, g.ID, func(p gitlab.Project) error {
		return w.emitProject(p, chain)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// emitProject emits at most one task per distinct project id, even when the
// API exposes the project under several group paths.
func (w *walk) emitProject(p gitlab.Project, parents []int) error {
	if _, ok := w.seenProjects[p.ID]; ok {
		w.logger.Debug().Str("project", p.PathWithNamespace).Int("id", p.ID).
			Msg("project already scheduled")
		return nil
	}
	w.seenProjects[p.ID] = struct{}{}

	w.logger.Info().Str("project", p.PathWithNamespace).Int("id", p.ID).Msg("found project")

	return w.emit(models.BackupTask{
		Ref: models.ResourceRef{
			Kind:      models.KindProject,
			ID:        p.ID,
			ParentIDs: parents,
			FullPath:  p.PathWithNamespace,
		},
		Parts: w.parts,
	})
}
