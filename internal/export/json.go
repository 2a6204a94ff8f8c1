package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/beebar/internal/beeminder"
)

type jsonExport struct {
	ExportedAt string     `json:"exported_at"`
	Count      int        `json:"count"`
	Goals      []jsonGoal `json:"goals"`
}

type jsonGoal struct {
	ID         string          `json:"id"`
	Slug       string          `json:"slug"`
	Title      string          `json:"title"`
	Urgency    string          `json:"urgency"`
	Safebuf    int             `json:"safebuf"`
	Buffer     string          `json:"buffer"`
	Deadline   string          `json:"deadline"`
	Current    *float64        `json:"current,omitempty"`
	Pledge     string          `json:"pledge,omitempty"`
	Rate       string          `json:"rate,omitempty"`
	Datapoints []jsonDatapoint `json:"datapoints,omitempty"`
}

type jsonDatapoint struct {
	ID       string  `json:"id"`
	Time     string  `json:"time"`
	Daystamp string  `json:"daystamp,omitempty"`
	Value    float64 `json:"value"`
	Comment  string  `json:"comment,omitempty"`
}

// GoalsJSON writes goals, with their recent datapoints when recent has an
// entry for the slug. recent may be nil.
func GoalsJSON(goals []beeminder.Goal, recent map[string][]beeminder.Datapoint, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(goals),
	}

	for _, g := range goals {
		pledge, _ := g.PledgeText()
		rate, _ := g.RateText()
		jg := jsonGoal{
			ID:       g.ID,
			Slug:     g.Slug,
			Title:    g.Title,
			Urgency:  g.Urgency().String(),
			Safebuf:  g.Safebuf,
			Buffer:   formatBuffer(g.Safebuf),
			Deadline: g.Deadline().Local().Format(time.RFC3339),
			Current:  g.Curval,
			Pledge:   pledge,
			Rate:     rate,
		}
		for _, dp := range recent[g.Slug] {
			jg.Datapoints = append(jg.Datapoints, jsonDatapoint{
				ID:       dp.ID,
				Time:     dp.Time().Local().Format(time.RFC3339),
				Daystamp: dp.Daystamp,
				Value:    dp.Value,
				Comment:  dp.Comment,
			})
		}
		export.Goals = append(export.Goals, jg)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
