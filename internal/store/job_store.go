// Package store holds the in-memory, ordered page view the dashboard renders
// from. A JobStore is owned by a single update loop and is not safe for
// concurrent use; network results must be marshalled onto that loop before
// they touch it.
package store

import "crawldash/internal/model"

type JobStore struct {
	order    []string
	jobs     map[string]model.Job
	selected map[string]struct{}
}

func NewJobStore() *JobStore {
	return &JobStore{
		jobs:     make(map[string]model.Job),
		selected: make(map[string]struct{}),
	}
}

// Upsert replaces the record for job.ID or appends it to the end of the
// current order. An incoming record older than the stored one (by UpdatedAt)
// is rejected as stale and the call reports false. Stale rejection is the
// only ordering contract between concurrent update sources.
func (s *JobStore) Upsert(job model.Job) bool {
	if job.ID == "" {
		return false
	}
	current, exists := s.jobs[job.ID]
	if exists && job.UpdatedAt.Before(current.UpdatedAt) {
		return false
	}
	if !exists {
		s.order = append(s.order, job.ID)
	}
	s.jobs[job.ID] = job
	return true
}

// Remove deletes by ID and prunes the selection in the same update.
// Removing an absent ID is a no-op.
func (s *JobStore) Remove(id string) {
	if _, ok := s.jobs[id]; !ok {
		return
	}
	delete(s.jobs, id)
	delete(s.selected, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// ReplacePage clears the store and repopulates it in the given order, used
// when the page or page size changes. Selection survives only for IDs still
// present on the new page.
func (s *JobStore) ReplacePage(jobs []model.Job) {
	s.order = s.order[:0]
	s.jobs = make(map[string]model.Job, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			continue
		}
		if _, dup := s.jobs[job.ID]; dup {
			continue
		}
		s.order = append(s.order, job.ID)
		s.jobs[job.ID] = job
	}
	for id := range s.selected {
		if _, ok := s.jobs[id]; !ok {
			delete(s.selected, id)
		}
	}
}

func (s *JobStore) Get(id string) (model.Job, bool) {
	job, ok := s.jobs[id]
	return job, ok
}

func (s *JobStore) Len() int {
	return len(s.order)
}

// Jobs returns the records in store order.
func (s *JobStore) Jobs() []model.Job {
	out := make([]model.Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id])
	}
	return out
}

func (s *JobStore) Select(id string) {
	if _, ok := s.jobs[id]; ok {
		s.selected[id] = struct{}{}
	}
}

func (s *JobStore) Deselect(id string) {
	delete(s.selected, id)
}

func (s *JobStore) ToggleSelect(id string) {
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return
	}
	s.Select(id)
}

func (s *JobStore) IsSelected(id string) bool {
	_, ok := s.selected[id]
	return ok
}

// SelectedIDs returns selected IDs in store order.
func (s *JobStore) SelectedIDs() []string {
	out := make([]string, 0, len(s.selected))
	for _, id := range s.order {
		if _, ok := s.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (s *JobStore) SelectionCount() int {
	return len(s.selected)
}

func (s *JobStore) ClearSelection() {
	s.selected = make(map[string]struct{})
}
