package store

import (
	"fmt"
	"time"
)

func (s *Store) RecordSubmission(sub Submission) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO submissions (goal_id, slug, value, comment, request_id, outcome, attempts, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.GoalID, sub.Slug, sub.Value, sub.Comment, sub.RequestID, sub.Outcome, sub.Attempts, sub.Error,
		sub.StartedAt.UTC().Format(time.RFC3339), sub.FinishedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("record submission: %w", err)
	}
	return res.LastInsertId()
}

// ListSubmissions returns journaled writes, newest first.
func (s *Store) ListSubmissions(f SubmissionFilter) ([]Submission, error) {
	query := `SELECT id, goal_id, slug, value, comment, request_id, outcome, attempts, error, started_at, finished_at
		FROM submissions WHERE 1=1`
	var args []any

	if f.Slug != "" {
		query += ` AND slug = ?`
		args = append(args, f.Slug)
	}
	if f.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, f.Outcome)
	}
	if f.From != nil {
		query += ` AND finished_at >= ?`
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY finished_at DESC, id DESC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		var sub Submission
		var started, finished string
		if err := rows.Scan(&sub.ID, &sub.GoalID, &sub.Slug, &sub.Value, &sub.Comment, &sub.RequestID,
			&sub.Outcome, &sub.Attempts, &sub.Error, &started, &finished); err != nil {
			return nil, err
		}
		sub.StartedAt, _ = time.Parse(time.RFC3339, started)
		sub.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// PruneSubmissions deletes journal rows that finished before cutoff.
func (s *Store) PruneSubmissions(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM submissions WHERE finished_at < ?`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune submissions: %w", err)
	}
	return res.RowsAffected()
}
