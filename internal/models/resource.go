// Package models contains the data structures used throughout glsafe.
package models

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the type of a remote GitLab entity.
type Kind string

const (
	KindGroup      Kind = "group"
	KindProject    Kind = "project"
	KindIssue      Kind = "issue"
	KindNote       Kind = "note"
	KindWikiPage   Kind = "wiki-page"
	KindSnippet    Kind = "snippet"
	KindAttachment Kind = "attachment"
)

// ResourceRef identifies a remote entity. It is a value object: copies are
// shared freely and a ref never holds a live parent object, only parent ids.
type ResourceRef struct {
	Kind Kind
	// ID is the instance-wide numeric id of the entity.
	ID int
	// IID is the project-scoped id for issues; zero otherwise.
	IID int
	// ParentIDs is the id chain from the topmost group down to the direct
	// parent, outermost first.
	ParentIDs []int
	// FullPath is the web-relative path (e.g. "acme/tools/foxy").
	FullPath string
	// Slug is set for wiki pages and attachment file names.
	Slug string
}

// Key returns the identity key used for deduplication and path partitioning.
func (r ResourceRef) Key() string {
	if r.Kind == KindWikiPage || r.Kind == KindAttachment {
		return fmt.Sprintf("%s/%d/%s", r.Kind, r.ID, r.Slug)
	}
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

func (r ResourceRef) String() string {
	if r.FullPath != "" {
		return fmt.Sprintf("%s %s [%d]", r.Kind, r.FullPath, r.ID)
	}
	return r.Key()
}

// Child derives a ref for a sub-resource of r.
func (r ResourceRef) Child(kind Kind, id int) ResourceRef {
	parents := make([]int, len(r.ParentIDs), len(r.ParentIDs)+1)
	copy(parents, r.ParentIDs)
	return ResourceRef{
		Kind:      kind,
		ID:        id,
		ParentIDs: append(parents, r.ID),
		FullPath:  r.FullPath,
	}
}

// Page is one batch of listing results plus continuation state. A page whose
// NextPage is zero is terminal; no further page may be requested after it.
type Page struct {
	Records  []json.RawMessage
	NextPage int
	PerPage  int
}

// IsLast reports whether the page terminates the listing. A page shorter than
// the requested size is treated as terminal even if the server advertised a
// continuation, guarding against inconsistent pagination headers.
func (p Page) IsLast() bool {
	if p.NextPage == 0 {
		return true
	}
	return p.PerPage > 0 && len(p.Records) < p.PerPage
}
