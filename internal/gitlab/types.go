// Package gitlab provides the raw GitLab REST primitives glsafe builds on:
// an authenticated HTTP client, pagination and rate-limit header parsing,
// typed records for the resources worth backing up, and attachment URL
// discovery.
package gitlab

// User is the authenticated token owner.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Group represents a GitLab group or subgroup.
type Group struct {
	ID       int    `json:"id"`
	ParentID *int   `json:"parent_id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	FullPath string `json:"full_path"`
	WebURL   string `json:"web_url"`
}

// Project represents a GitLab project.
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	Path              string `json:"path"`
	PathWithNamespace string `json:"path_with_namespace"`
	Description       string `json:"description"`
	WebURL            string `json:"web_url"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
	DefaultBranch     string `json:"default_branch"`
}

// Issue represents a project issue.
type Issue struct {
	ID          int    `json:"id"`
	IID         int    `json:"iid"`
	ProjectID   int    `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"`
	WebURL      string `json:"web_url"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Note represents a comment on an issue.
type Note struct {
	ID        int    `json:"id"`
	Body      string `json:"body"`
	Author    Author `json:"author"`
	CreatedAt string `json:"created_at"`
}

// Author identifies the writer of a note.
type Author struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

// WikiPage represents one page of a group or project wiki. Content is only
// populated when a single page is fetched by slug.
type WikiPage struct {
	Slug    string `json:"slug"`
	Title   string `json:"title"`
	Format  string `json:"format"`
	Content string `json:"content"`
}

// Snippet represents a project or group snippet.
type Snippet struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	FileName    string `json:"file_name"`
	Description string `json:"description"`
	WebURL      string `json:"web_url"`
	RawURL      string `json:"raw_url"`
}
