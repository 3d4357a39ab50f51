package model

import "time"

// Job is the client-side record tracking one submitted URL through the
// crawl/analysis lifecycle. The backend owns the ID and the status; the
// client only mirrors them.
type Job struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Status      string    `json:"status"`
	Title       string    `json:"title,omitempty"`
	HTMLVersion string    `json:"html_version,omitempty"`
	LoginForm   bool      `json:"login_form,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusEvent is one inbound push-channel message. Summary fields are only
// meaningful for the status they belong to.
type StatusEvent struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Title       string    `json:"title,omitempty"`
	HTMLVersion string    `json:"html_version,omitempty"`
	LoginForm   bool      `json:"login_form,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ApplyTo folds the event into a copy of the stored job. A zero stored job
// (unknown ID) still yields a usable placeholder record.
func (e StatusEvent) ApplyTo(job Job) Job {
	job.ID = e.ID
	job.Status = e.Status
	job.UpdatedAt = e.UpdatedAt
	switch e.Status {
	case StatusCompleted:
		job.Title = e.Title
		job.HTMLVersion = e.HTMLVersion
		job.LoginForm = e.LoginForm
		job.LastError = ""
	case StatusFailed:
		job.LastError = e.LastError
	}
	return job
}

// Analysis is the full payload of GET /analyses/{id}.
type Analysis struct {
	URL         string    `json:"url"`
	HTMLVersion string    `json:"html_version"`
	Title       string    `json:"title"`
	LoginForm   bool      `json:"login_form"`
	Headings    []Heading `json:"headings"`
	Links       []Link    `json:"links"`
}

type Heading struct {
	Level string `json:"level"`
	Count int    `json:"count"`
}

type Link struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	IsInternal     bool   `json:"is_internal"`
	IsInaccessible bool   `json:"is_inaccessible"`
	StatusCode     int    `json:"status_code"`
}

// BrokenLinks filters the links flagged inaccessible by the crawler.
func (a Analysis) BrokenLinks() []Link {
	broken := make([]Link, 0)
	for _, l := range a.Links {
		if l.IsInaccessible {
			broken = append(broken, l)
		}
	}
	return broken
}
