package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sadopc/beebar/internal/beeminder"
	"github.com/sadopc/beebar/internal/store"
)

// GoalsCSV writes one row per goal in the order given.
func GoalsCSV(goals []beeminder.Goal, now time.Time, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"Slug", "Title", "Urgency", "Safe Days", "Buffer", "Deadline", "Due", "Current", "Pledge", "Rate"}); err != nil {
		return err
	}

	for _, g := range goals {
		pledge, _ := g.PledgeText()
		rate, _ := g.RateText()
		row := []string{
			g.Slug,
			g.Title,
			g.Urgency().String(),
			strconv.Itoa(g.Safebuf),
			formatBuffer(g.Safebuf),
			g.Deadline().Local().Format(time.RFC3339),
			g.DeadlineText(now),
			formatCurval(g.Curval),
			pledge,
			rate,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	return w.Error()
}

// SubmissionsCSV writes the submission journal.
func SubmissionsCSV(subs []store.Submission, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"ID", "Goal", "Value", "Comment", "Outcome", "Attempts", "Started", "Finished", "Error"}); err != nil {
		return err
	}
	for _, s := range subs {
		row := []string{
			strconv.FormatInt(s.ID, 10),
			s.Slug,
			formatValue(s.Value),
			s.Comment,
			s.Outcome,
			strconv.Itoa(s.Attempts),
			s.StartedAt.Local().Format(time.RFC3339),
			s.FinishedAt.Local().Format(time.RFC3339),
			s.Error,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}

func formatBuffer(safebuf int) string {
	switch {
	case safebuf < 1:
		return "due today"
	case safebuf == 1:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", safebuf)
	}
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatCurval(v *float64) string {
	if v == nil {
		return ""
	}
	return formatValue(*v)
}
