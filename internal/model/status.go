package model

import "fmt"

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// AllStatuses in filter-cycle order.
var AllStatuses = []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusPending:    true,
		StatusProcessing: true,
		StatusFailed:     true,
	},
	StatusProcessing: {
		StatusProcessing: true,
		StatusCompleted:  true,
		StatusFailed:     true,
	},
	StatusCompleted: {
		StatusCompleted:  true,
		StatusPending:    true, // re-analyze requested
		StatusProcessing: true,
	},
	StatusFailed: {
		StatusFailed:     true,
		StatusPending:    true, // re-analyze requested
		StatusProcessing: true,
	},
}

func IsKnownStatus(status string) bool {
	for _, s := range AllStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionJobStatus(job *Job, toStatus string, reason string) error {
	from := job.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid job status transition: %q -> %q (id=%s url=%s)", from, toStatus, job.ID, job.URL)
	}
	job.Status = toStatus
	if toStatus == StatusFailed {
		job.LastError = reason
	} else {
		job.LastError = ""
	}
	return nil
}
