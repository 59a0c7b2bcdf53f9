// Package writer persists fetched metadata and attachments under a
// deterministic directory layout keyed by resource identity. Paths are a pure
// function of the resource ref, never of task order, so concurrent tasks can
// never collide on a path and no locking is needed.
package writer

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/glsafe/glsafe/internal/models"
)

// WriteError reports a local filesystem failure. A failing destination root
// is fatal for the run; anything else is recorded per task.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Service defines the persistence operations.
type Service interface {
	CheckRoot() error
	PathFor(ref models.ResourceRef) string
	RepoPath(ref models.ResourceRef) string
	WikiRepoPath(ref models.ResourceRef) string
	WriteMetadata(ref models.ResourceRef, v any) error
	WriteContent(ref models.ResourceRef, content string) error
	WriteAttachment(ref models.ResourceRef, name string, r io.Reader) (int64, error)
	WriteSummary(summary models.RunSummary) error
}

// Impl implements the writer Service interface.
type Impl struct {
	fs     afero.Fs
	root   string
	logger zerolog.Logger
}

// New creates a writer rooted at the destination directory.
func New(logger zerolog.Logger, root string) *Impl {
	return NewWithFs(logger, afero.NewOsFs(), root)
}

// NewWithFs creates a writer over a custom filesystem (for testing).
func NewWithFs(logger zerolog.Logger, fs afero.Fs, root string) *Impl {
	return &Impl{fs: fs, root: root, logger: logger}
}

// CheckRoot probes that the destination root exists and is writable. Called
// once at startup; a failure here aborts the whole run.
func (s *Impl) CheckRoot() error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return &WriteError{Path: s.root, Err: err}
	}
	probe := filepath.Join(s.root, ".glsafe-write-check")
	if err := afero.WriteFile(s.fs, probe, []byte{}, 0o644); err != nil {
		return &WriteError{Path: s.root, Err: err}
	}
	if err := s.fs.Remove(probe); err != nil {
		return &WriteError{Path: probe, Err: err}
	}
	return nil
}

// PathFor maps a resource identity onto its destination directory.
func (s *Impl) PathFor(ref models.ResourceRef) string {
	base := filepath.Join(s.root, filepath.FromSlash(ref.FullPath))
	switch ref.Kind {
	case models.KindIssue:
		return filepath.Join(base, "issues", strconv.Itoa(ref.IID))
	case models.KindNote:
		return filepath.Join(base, "issues", strconv.Itoa(ref.IID), "notes")
	case models.KindWikiPage:
		return filepath.Join(base, "wiki")
	case models.KindSnippet:
		return filepath.Join(base, "snippets", strconv.Itoa(ref.ID))
	default:
		return base
	}
}

// RepoPath is where a project's repository clone is materialized.
func (s *Impl) RepoPath(ref models.ResourceRef) string {
	if ref.Kind == models.KindSnippet {
		return filepath.Join(s.PathFor(ref), "repo")
	}
	return filepath.Join(s.root, filepath.FromSlash(ref.FullPath), "repo")
}

// WikiRepoPath is where a project's or group's wiki repository clone lands.
func (s *Impl) WikiRepoPath(ref models.ResourceRef) string {
	return filepath.Join(s.root, filepath.FromSlash(ref.FullPath), "wiki", "repo")
}

// WriteMetadata persists the resource's record as an indented JSON file.
// Writing the same ref again overwrites, so repeated runs converge.
func (s *Impl) WriteMetadata(ref models.ResourceRef, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", ref.Key(), err)
	}
	return s.writeFile(filepath.Join(s.PathFor(ref), s.recordName(ref)), data)
}

// WriteContent persists the resource's markdown body next to its record.
func (s *Impl) WriteContent(ref models.ResourceRef, content string) error {
	var name string
	switch ref.Kind {
	case models.KindNote:
		name = strconv.Itoa(ref.ID) + ".md"
	case models.KindWikiPage:
		name = filepath.FromSlash(ref.Slug) + ".md"
	default:
		name = "description.md"
	}
	return s.writeFile(filepath.Join(s.PathFor(ref), name), []byte(content))
}

// WriteAttachment streams an attachment into the resource's attachments
// directory, overwriting any previous copy. The name may carry the upload's
// hash directory; it is kept as a subdirectory so same-named uploads stay
// distinct files.
func (s *Impl) WriteAttachment(ref models.ResourceRef, name string, r io.Reader) (int64, error) {
	target := filepath.Join(s.PathFor(ref), "attachments", filepath.FromSlash(relName(name)))
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, &WriteError{Path: filepath.Dir(target), Err: err}
	}

	f, err := s.fs.Create(target)
	if err != nil {
		return 0, &WriteError{Path: target, Err: err}
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, &WriteError{Path: target, Err: err}
	}

	s.logger.Debug().Str("file", target).Int64("bytes", n).Msg("attachment written")
	return n, nil
}

// WriteSummary persists the run report at the destination root.
func (s *Impl) WriteSummary(summary models.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	return s.writeFile(filepath.Join(s.root, "results.json"), data)
}

func (s *Impl) recordName(ref models.ResourceRef) string {
	switch ref.Kind {
	case models.KindGroup:
		return fmt.Sprintf("group_%d.json", ref.ID)
	case models.KindProject:
		return fmt.Sprintf("project_%d.json", ref.ID)
	case models.KindIssue:
		return fmt.Sprintf("%d.json", ref.IID)
	case models.KindNote:
		return fmt.Sprintf("%d.json", ref.ID)
	case models.KindWikiPage:
		return filepath.FromSlash(ref.Slug) + ".json"
	case models.KindSnippet:
		return fmt.Sprintf("snippet_%d.json", ref.ID)
	default:
		return fmt.Sprintf("%d.json", ref.ID)
	}
}

// relName confines an attachment name below the attachments directory,
// dropping any traversal components.
func relName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
}

func (s *Impl) writeFile(target string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return &WriteError{Path: filepath.Dir(target), Err: err}
	}
	if err := afero.WriteFile(s.fs, target, data, 0o644); err != nil {
		return &WriteError{Path: target, Err: err}
	}
	return nil
}
