package domain

import "time"

// TaskStatus is the state of an enrichment task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRetrying  TaskStatus = "retrying"
	TaskStatusDone      TaskStatus = "done"
	TaskStatusAbandoned TaskStatus = "abandoned"
)

// EnrichmentTask schedules backfill attempts for a match that vanished from
// the live feed without a recorded winner. Tasks are keyed by match id and
// removed from the queue on success or once the retry budget is exhausted.
type EnrichmentTask struct {
	MatchID       string     `json:"match_id"`
	DetectedAt    time.Time  `json:"detected_at"`
	Attempts      int        `json:"attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	Status        TaskStatus `json:"status"`
}
