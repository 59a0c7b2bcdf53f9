// Package fetcher retrieves GitLab resources with retry, backoff and
// rate-limit respect. Every network call owns its own retry state, so a
// single fetcher instance is safe for concurrent workers.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/juju/clock"
	"github.com/rs/zerolog"

	"github.com/glsafe/glsafe/internal/gitlab"
	"github.com/glsafe/glsafe/internal/models"
	"github.com/glsafe/glsafe/internal/services/pager"
)

// Client is the subset of the GitLab client the fetcher needs.
type Client interface {
	GetJSON(ctx context.Context, path string, query url.Values, v any) error
	GetPage(ctx context.Context, path string, query url.Values, page, perPage int) (models.Page, error)
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// AttachmentSink receives one attachment body. The reader is only valid for
// the duration of the call; bytes are streamed, never buffered wholesale.
type AttachmentSink func(name string, r io.Reader) error

// Service defines the resource retrieval operations.
type Service interface {
	Login(ctx context.Context) (gitlab.User, error)
	GetGroup(ctx context.Context, id int) (gitlab.Group, error)
	GetProject(ctx context.Context, id int) (gitlab.Project, error)
	ListTopGroups(ctx context.Context, fn func(gitlab.Group) error) error
	ListSubgroups(ctx context.Context, groupID int, fn func(gitlab.Group) error) error
	ListGroupProjects(ctx context.Context, groupID int, fn func(gitlab.Project) error) error
	ListUserProjects(ctx context.Context, userID int, fn func(gitlab.Project) error) error
	ListIssues(ctx context.Context, projectID int, fn func(gitlab.Issue) error) error
	ListNotes(ctx context.Context, projectID, issueIID int, fn func(gitlab.Note) error) error
	ListSnippets(ctx context.Context, projectID int, fn func(gitlab.Snippet) error) error
	ListWikiPages(ctx context.Context, kind models.Kind, id int, fn func(gitlab.WikiPage) error) error
	GetWikiPage(ctx context.Context, kind models.Kind, id int, slug string) (gitlab.WikiPage, error)
	EachAttachment(ctx context.Context, ref models.ResourceRef, urls []string, sink AttachmentSink) error
}

// Impl implements the fetcher Service interface.
type Impl struct {
	client   Client
	throttle *gitlab.Throttle
	retry    models.RetryConfig
	perPage  int
	clk      clock.Clock
	logger   zerolog.Logger
}

// New creates a new fetcher service.
func New(logger zerolog.Logger, client Client, throttle *gitlab.Throttle, retry models.RetryConfig) *Impl {
	return NewWithClock(logger, client, throttle, retry, clock.WallClock)
}

// NewWithClock creates a fetcher with a custom clock (for testing).
func NewWithClock(logger zerolog.Logger, client Client, throttle *gitlab.Throttle, retry models.RetryConfig, clk clock.Clock) *Impl {
	return &Impl{
		client:   client,
		throttle: throttle,
		retry:    retry,
		perPage:  gitlab.DefaultPerPage,
		clk:      clk,
		logger:   logger,
	}
}

// Login fetches the token owner, verifying connectivity and credentials.
func (s *Impl) Login(ctx context.Context) (gitlab.User, error) {
	var user gitlab.User
	err := s.do(ctx, "get user", models.ResourceRef{}, func(ctx context.Context) error {
		return s.client.GetJSON(ctx, "user", nil, &user)
	})
	return user, err
}

// GetGroup fetches a single group's metadata.
func (s *Impl) GetGroup(ctx context.Context, id int) (gitlab.Group, error) {
	ref := models.ResourceRef{Kind: models.KindGroup, ID: id}
	var group gitlab.Group
	err := s.do(ctx, "get group", ref, func(ctx context.Context) error {
		return s.client.GetJSON(ctx, "groups/"+strconv.Itoa(id), nil, &group)
	})
	return group, err
}

// GetProject fetches a single project's metadata.
func (s *Impl) GetProject(ctx context.Context, id int) (gitlab.Project, error) {
	ref := models.ResourceRef{Kind: models.KindProject, ID: id}
	var project gitlab.Project
	err := s.do(ctx, "get project", ref, func(ctx context.Context) error {
		return s.client.GetJSON(ctx, "projects/"+strconv.Itoa(id), nil, &project)
	})
	return project, err
}

// ListTopGroups walks every top-level group the token can see.
func (s *Impl) ListTopGroups(ctx context.Context, fn func(gitlab.Group) error) error {
	query := url.Values{"top_level_only": {"true"}}
	return listAs(ctx, s, "list groups", models.ResourceRef{}, "groups", query, fn)
}

// ListSubgroups walks the direct subgroups of a group.
func (s *Impl) ListSubgroups(ctx context.Context, groupID int, fn func(gitlab.Group) error) error {
	ref := models.ResourceRef{Kind: models.KindGroup, ID: groupID}
	path := fmt.Sprintf("groups/%d/subgroups", groupID)
	return listAs(ctx, s, "list subgroups", ref, path, nil, fn)
}

// ListGroupProjects walks the projects directly contained in a group.
func (s *Impl) ListGroupProjects(ctx context.Context, groupID int, fn func(gitlab.Project) error) error {
	ref := models.ResourceRef{Kind: models.KindGroup, ID: groupID}
	path := fmt.Sprintf("groups/%d/projects", groupID)
	return listAs(ctx, s, "list group projects", ref, path, nil, fn)
}

// ListUserProjects walks a user's personal projects.
func (s *Impl) ListUserProjects(ctx context.Context, userID int, fn func(gitlab.Project) error) error {
	path := fmt.Sprintf("users/%d/projects", userID)
	return listAs(ctx, s, "list user projects", models.ResourceRef{}, path, nil, fn)
}

// ListIssues walks all issues of a project.
func (s *Impl) ListIssues(ctx context.Context, projectID int, fn func(gitlab.Issue) error) error {
	ref := models.ResourceRef{Kind: models.KindProject, ID: projectID}
	path := fmt.Sprintf("projects/%d/issues", projectID)
	return listAs(ctx, s, "list issues", ref, path, nil, fn)
}

// ListNotes walks the notes of one issue.
func (s *Impl) ListNotes(ctx context.Context, projectID, issueIID int, fn func(gitlab.Note) error) error {
	ref := models.ResourceRef{Kind: models.KindIssue, ID: projectID, IID: issueIID}
	path := fmt.Sprintf("projects/%d/issues/%d/notes", projectID, issueIID)
	return listAs(ctx, s, "list notes", ref, path, nil, fn)
}

// ListSnippets walks all snippets of a project.
func (s *Impl) ListSnippets(ctx context.Context, projectID int, fn func(gitlab.Snippet) error) error {
	ref := models.ResourceRef{Kind: models.KindProject, ID: projectID}
	path := fmt.Sprintf("projects/%d/snippets", projectID)
	return listAs(ctx, s, "list snippets", ref, path, nil, fn)
}

// ListWikiPages walks the wiki page listing of a project or group. Listed
// pages carry no content; fetch it per page with GetWikiPage.
func (s *Impl) ListWikiPages(ctx context.Context, kind models.Kind, id int, fn func(gitlab.WikiPage) error) error {
	ref := models.ResourceRef{Kind: kind, ID: id}
	return listAs(ctx, s, "list wiki pages", ref, wikiPath(kind, id), nil, fn)
}

// GetWikiPage fetches one wiki page including its content.
func (s *Impl) GetWikiPage(ctx context.Context, kind models.Kind, id int, slug string) (gitlab.WikiPage, error) {
	ref := models.ResourceRef{Kind: models.KindWikiPage, ID: id, Slug: slug}
	var page gitlab.WikiPage
	err := s.do(ctx, "get wiki page", ref, func(ctx context.Context) error {
		return s.client.GetJSON(ctx, wikiPath(kind, id)+"/"+url.PathEscape(slug), nil, &page)
	})
	return page, err
}

// EachAttachment downloads every referenced upload and streams it to sink.
// Each download retries independently; a failed one fails the whole call so
// the task can record the sub-resource as partial.
func (s *Impl) EachAttachment(ctx context.Context, ref models.ResourceRef, urls []string, sink AttachmentSink) error {
	for _, target := range urls {
		name := gitlab.AttachmentName(target)
		err := s.do(ctx, "download "+name, ref, func(ctx context.Context) error {
			body, err := s.client.Download(ctx, target)
			if err != nil {
				return err
			}
			defer func() { _ = body.Close() }()
			return sink(name, body)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// listAs pages through a listing endpoint, retrying each page fetch under the
// retry policy and decoding records into T.
func listAs[T any](ctx context.Context, s *Impl, op string, ref models.ResourceRef, path string, query url.Values, fn func(T) error) error {
	fetch := func(ctx context.Context, page int) (models.Page, error) {
		var p models.Page
		err := s.do(ctx, op, ref, func(ctx context.Context) error {
			var err error
			p, err = s.client.GetPage(ctx, path, query, page, s.perPage)
			return err
		})
		return p, err
	}
	return pager.EachAs(ctx, fetch, fn)
}

func wikiPath(kind models.Kind, id int) string {
	if kind == models.KindGroup {
		return fmt.Sprintf("groups/%d/wikis", id)
	}
	return fmt.Sprintf("projects/%d/wikis", id)
}
