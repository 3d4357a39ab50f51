package cli

import (
	"strings"

	"crawldash/internal/model"
)

// visibleJobs is the pure filter step of the search pipeline: substring match
// (case-insensitive) on url or title, AND status equality when a filter is
// set. It never touches the network; only page changes refetch.
func visibleJobs(jobs []model.Job, search, statusFilter string) []model.Job {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" && statusFilter == "" {
		return jobs
	}
	out := make([]model.Job, 0, len(jobs))
	for _, job := range jobs {
		if statusFilter != "" && job.Status != statusFilter {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(job.URL), search) &&
			!strings.Contains(strings.ToLower(job.Title), search) {
			continue
		}
		out = append(out, job)
	}
	return out
}

// nextStatusFilter cycles all -> pending -> processing -> completed ->
// failed -> all.
func nextStatusFilter(current string) string {
	if current == "" {
		return model.AllStatuses[0]
	}
	for i, s := range model.AllStatuses {
		if s == current {
			if i == len(model.AllStatuses)-1 {
				return ""
			}
			return model.AllStatuses[i+1]
		}
	}
	return ""
}
