package models

import "time"

// Parts selects which sub-resources of a task are backed up.
type Parts struct {
	Repo     bool
	Issues   bool
	Wiki     bool
	Snippets bool
}

// BackupTask is one unit of work: a project, or a group-level wiki/snippet
// set. Created by the tree walker, consumed exactly once by the scheduler.
type BackupTask struct {
	Ref   ResourceRef
	Parts Parts
}

// TaskStatus is the outcome class of a completed task.
type TaskStatus string

const (
	StatusSuccess TaskStatus = "success"
	StatusPartial TaskStatus = "partial"
	StatusFailed  TaskStatus = "failed"
)

// PartError records a failure of one sub-resource of a task.
type PartError struct {
	Part string `json:"part"`
	Err  string `json:"error"`
}

// WrittenCounts tallies items persisted by one task.
type WrittenCounts struct {
	Issues      int `json:"issues"`
	Notes       int `json:"notes"`
	WikiPages   int `json:"wiki_pages"`
	Snippets    int `json:"snippets"`
	Attachments int `json:"attachments"`
	Repos       int `json:"repos"`
}

// Add accumulates counts from another tally.
func (w *WrittenCounts) Add(o WrittenCounts) {
	w.Issues += o.Issues
	w.Notes += o.Notes
	w.WikiPages += o.WikiPages
	w.Snippets += o.Snippets
	w.Attachments += o.Attachments
	w.Repos += o.Repos
}

// TaskResult is the immutable outcome of one BackupTask.
type TaskResult struct {
	Ref      ResourceRef   `json:"-"`
	Path     string        `json:"path"`
	Status   TaskStatus    `json:"status"`
	Errors   []PartError   `json:"errors,omitempty"`
	Written  WrittenCounts `json:"written"`
	Duration time.Duration `json:"duration_ns"`
}

// RunSummary aggregates all task results of one run.
type RunSummary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Partial   int           `json:"partial"`
	Failed    int           `json:"failed"`
	Written   WrittenCounts `json:"written"`
	Duration  time.Duration `json:"duration_ns"`
	Results   []TaskResult  `json:"results"`
}

// Record folds one task result into the summary.
func (s *RunSummary) Record(r TaskResult) {
	s.Total++
	switch r.Status {
	case StatusSuccess:
		s.Succeeded++
	case StatusPartial:
		s.Partial++
	case StatusFailed:
		s.Failed++
	}
	s.Written.Add(r.Written)
	s.Results = append(s.Results, r)
}

// OK reports whether every task completed fully.
func (s *RunSummary) OK() bool {
	return s.Partial == 0 && s.Failed == 0
}
