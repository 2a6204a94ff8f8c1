package store

import "time"

type Setting struct {
	Key   string
	Value string
}

// Submission is one journaled datapoint write and how it ended.
type Submission struct {
	ID         int64
	GoalID     string
	Slug       string
	Value      float64
	Comment    string
	RequestID  string
	Outcome    string // confirmed, unconfirmed, cancelled, failed
	Attempts   int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// SubmissionFilter narrows ListSubmissions.
type SubmissionFilter struct {
	Slug    string
	Outcome string
	From    *time.Time
	Limit   int
}
