package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/glsafe/glsafe/internal/gitlab"
	"github.com/glsafe/glsafe/internal/models"
	"github.com/glsafe/glsafe/internal/services/cloner"
)

// backupOne executes a single task. Every sub-resource failure is recorded
// into the result instead of propagating; the scheduler relies on that for
// failure isolation.
func (s *Impl) backupOne(ctx context.Context, task models.BackupTask) models.TaskResult {
	res := models.TaskResult{Ref: task.Ref, Path: task.Ref.FullPath}

	if task.Ref.Kind == models.KindGroup {
		s.backupGroup(ctx, task, &res)
	} else {
		s.backupProject(ctx, task, &res)
	}

	switch {
	case len(res.Errors) == 0:
		res.Status = models.StatusSuccess
	case res.Written == (models.WrittenCounts{}):
		res.Status = models.StatusFailed
	default:
		res.Status = models.StatusPartial
	}
	return res
}

// backupProject persists a project's metadata and its enabled sub-resources.
// Metadata always lands before any attachment is requested, so a crash mid
// task leaves re-runnable state, never orphaned attachments.
func (s *Impl) backupProject(ctx context.Context, task models.BackupTask, res *models.TaskResult) {
	ref := task.Ref
	project, err := s.fetcherSvc.GetProject(ctx, ref.ID)
	if err != nil {
		recordErr(res, "metadata", err)
		return
	}
	ref.FullPath = project.PathWithNamespace
	res.Path = project.PathWithNamespace

	if err := s.writerSvc.WriteMetadata(ref, project); err != nil {
		recordErr(res, "metadata", err)
		return
	}

	if task.Parts.Repo {
		s.backupRepo(ctx, ref, project, res)
	}
	if task.Parts.Issues {
		s.backupIssues(ctx, ref, project, res)
	}
	if task.Parts.Wiki {
		s.backupWikiPages(ctx, ref, models.KindProject, project.ID, project.WebURL, res)
		s.backupWikiRepo(ctx, ref, project.WebURL, res)
	}
	if task.Parts.Snippets {
		s.backupSnippets(ctx, ref, project, res)
	}
}

// backupGroup persists a group's metadata and its group-level wiki.
func (s *Impl) backupGroup(ctx context.Context, task models.BackupTask, res *models.TaskResult) {
	ref := task.Ref
	group, err := s.fetcherSvc.GetGroup(ctx, ref.ID)
	if err != nil {
		recordErr(res, "metadata", err)
		return
	}
	ref.FullPath = group.FullPath
	res.Path = group.FullPath

	if err := s.writerSvc.WriteMetadata(ref, group); err != nil {
		recordErr(res, "metadata", err)
		return
	}

	if task.Parts.Wiki {
		s.backupWikiPages(ctx, ref, models.KindGroup, group.ID, group.WebURL, res)
		s.backupWikiRepo(ctx, ref, group.WebURL, res)
	}
}

// backupWikiRepo mirrors the wiki's underlying git repository next to the
// exported pages. Not every wiki has one; absence is fine.
func (s *Impl) backupWikiRepo(ctx context.Context, ref models.ResourceRef, webURL string, res *models.TaskResult) {
	_, found, err := s.clonerSvc.CloneWiki(ctx, webURL, s.writerSvc.WikiRepoPath(ref))
	if err != nil {
		recordErr(res, "wiki repo", err)
		return
	}
	if found {
		res.Written.Repos++
	}
}

func (s *Impl) backupRepo(ctx context.Context, ref models.ResourceRef, project gitlab.Project, res *models.TaskResult) {
	result, err := s.clonerSvc.Clone(ctx, project.HTTPURLToRepo, s.writerSvc.RepoPath(ref))
	if err != nil {
		recordErr(res, "repo", err)
		return
	}
	res.Written.Repos++
	s.logger.Debug().
		Str("project", project.PathWithNamespace).
		Int("branches", result.Branches).
		Msg("repository backed up")
}

// backupIssues walks all issues of a project; a failure in one issue is
// recorded and the rest continue.
func (s *Impl) backupIssues(ctx context.Context, ref models.ResourceRef, project gitlab.Project, res *models.TaskResult) {
	err := s.fetcherSvc.ListIssues(ctx, project.ID, func(issue gitlab.Issue) error {
		if err := s.backupIssue(ctx, ref, project, issue, res); err != nil {
			recordErr(res, fmt.Sprintf("issue %d", issue.IID), err)
		}
		return nil
	})
	if err != nil {
		recordErr(res, "issues", err)
	}
}

func (s *Impl) backupIssue(ctx context.Context, ref models.ResourceRef, project gitlab.Project, issue gitlab.Issue, res *models.TaskResult) error {
	iref := models.ResourceRef{
		Kind:      models.KindIssue,
		ID:        issue.ID,
		IID:       issue.IID,
		ParentIDs: append(append([]int{}, ref.ParentIDs...), project.ID),
		FullPath:  ref.FullPath,
	}
	if err := s.writerSvc.WriteMetadata(iref, issue); err != nil {
		return err
	}
	if err := s.writerSvc.WriteContent(iref, gitlab.RelativizeUploads(issue.Description)); err != nil {
		return err
	}
	res.Written.Issues++

	s.backupAttachments(ctx, iref, attachmentURLs(project.WebURL, issue.Description), res)

	return s.fetcherSvc.ListNotes(ctx, project.ID, issue.IID, func(note gitlab.Note) error {
		nref := models.ResourceRef{
			Kind:      models.KindNote,
			ID:        note.ID,
			IID:       issue.IID,
			ParentIDs: append(append([]int{}, iref.ParentIDs...), issue.ID),
			FullPath:  ref.FullPath,
		}
		if err := s.writerSvc.WriteMetadata(nref, note); err != nil {
			return err
		}
		if err := s.writerSvc.WriteContent(nref, gitlab.RelativizeUploads(note.Body)); err != nil {
			return err
		}
		res.Written.Notes++

		s.backupAttachments(ctx, nref, attachmentURLs(project.WebURL, note.Body), res)
		return nil
	})
}

// backupWikiPages persists every wiki page of a project or group, content and
// attachments included.
func (s *Impl) backupWikiPages(ctx context.Context, ref models.ResourceRef, kind models.Kind, id int, webURL string, res *models.TaskResult) {
	err := s.fetcherSvc.ListWikiPages(ctx, kind, id, func(page gitlab.WikiPage) error {
		full, err := s.fetcherSvc.GetWikiPage(ctx, kind, id, page.Slug)
		if err != nil {
			recordErr(res, "wiki "+page.Slug, err)
			return nil
		}
		wref := models.ResourceRef{
			Kind:      models.KindWikiPage,
			ID:        id,
			ParentIDs: append(append([]int{}, ref.ParentIDs...), id),
			FullPath:  ref.FullPath,
			Slug:      page.Slug,
		}
		if err := s.writerSvc.WriteMetadata(wref, full); err != nil {
			return err
		}
		if err := s.writerSvc.WriteContent(wref, gitlab.RelativizeUploads(full.Content)); err != nil {
			return err
		}
		res.Written.WikiPages++

		s.backupAttachments(ctx, wref, wikiAttachmentURLs(webURL, full.Content), res)
		return nil
	})
	if err != nil {
		recordErr(res, "wiki", err)
	}
}

// backupSnippets persists a project's snippets. Snippet repositories are
// cloned when the remote exposes one; a missing snippet repo is not a
// failure.
func (s *Impl) backupSnippets(ctx context.Context, ref models.ResourceRef, project gitlab.Project, res *models.TaskResult) {
	err := s.fetcherSvc.ListSnippets(ctx, project.ID, func(snippet gitlab.Snippet) error {
		sref := models.ResourceRef{
			Kind:      models.KindSnippet,
			ID:        snippet.ID,
			ParentIDs: append(append([]int{}, ref.ParentIDs...), project.ID),
			FullPath:  ref.FullPath,
		}
		if err := s.writerSvc.WriteMetadata(sref, snippet); err != nil {
			return err
		}
		if err := s.writerSvc.WriteContent(sref, gitlab.RelativizeUploads(snippet.Description)); err != nil {
			return err
		}
		res.Written.Snippets++

		s.backupAttachments(ctx, sref, attachmentURLs(project.WebURL, snippet.Description), res)

		if snippet.WebURL != "" {
			if _, err := s.clonerSvc.Clone(ctx, snippet.WebURL, s.writerSvc.RepoPath(sref)); err != nil {
				if cloner.IsMissingRepo(err) {
					s.logger.Debug().Int("snippet", snippet.ID).Msg("snippet has no git repository")
				} else {
					recordErr(res, fmt.Sprintf("snippet %d repo", snippet.ID), err)
				}
			}
		}
		return nil
	})
	if err != nil {
		recordErr(res, "snippets", err)
	}
}

// backupAttachments streams every referenced upload straight into the
// writer. Download failures are recorded per resource, not fatal.
func (s *Impl) backupAttachments(ctx context.Context, ref models.ResourceRef, urls []string, res *models.TaskResult) {
	if len(urls) == 0 {
		return
	}
	err := s.fetcherSvc.EachAttachment(ctx, ref, urls, func(name string, r io.Reader) error {
		if _, err := s.writerSvc.WriteAttachment(ref, name, r); err != nil {
			return err
		}
		res.Written.Attachments++
		return nil
	})
	if err != nil {
		recordErr(res, "attachments", err)
	}
}

func attachmentURLs(webURL string, texts ...string) []string {
	uploads := gitlab.FindUploads(texts...)
	urls := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		urls = append(urls, gitlab.AttachmentURL(webURL, upload))
	}
	return urls
}

func wikiAttachmentURLs(webURL string, texts ...string) []string {
	uploads := gitlab.FindUploads(texts...)
	urls := make([]string, 0, len(uploads))
	for _, upload := range uploads {
		urls = append(urls, gitlab.WikiAttachmentURL(webURL, upload))
	}
	return urls
}

func recordErr(res *models.TaskResult, part string, err error) {
	res.Errors = append(res.Errors, models.PartError{Part: part, Err: err.Error()})
}
