package beeminder

import (
	"fmt"
	"strconv"
	"time"
)

// Goal is one tracked goal as returned by the goals endpoints. Optional fields
// are pointers; nil means the service did not expose a value.
type Goal struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Title    string `json:"title"`
	GoalType string `json:"goal_type"`

	Losedate int64  `json:"losedate"` // unix seconds of derailment
	Safebuf  int    `json:"safebuf"`  // days of safety buffer
	Limsum   string `json:"limsum"`

	Delta   float64  `json:"delta"`
	Todayta bool     `json:"todayta"`
	Curval  *float64 `json:"curval"`
	Curday  *int64   `json:"curday"`

	GraphURL string  `json:"graph_url"`
	ThumbURL string  `json:"thumb_url"`
	SvgURL   *string `json:"svg_url"`

	Pledge float64  `json:"pledge"`
	Gunits string   `json:"gunits"`
	Rate   *float64 `json:"rate"`
	Runits string   `json:"runits"`

	UpdatedAt *int64 `json:"updated_at"`
}

type Urgency int

const (
	UrgencyEmergency Urgency = iota
	UrgencyTomorrow
	UrgencyTwoDays
	UrgencySafe
	UrgencyVerySafe
)

func (u Urgency) String() string {
	switch u {
	case UrgencyEmergency:
		return "emergency"
	case UrgencyTomorrow:
		return "tomorrow"
	case UrgencyTwoDays:
		return "two-days"
	case UrgencySafe:
		return "safe"
	default:
		return "very-safe"
	}
}

// Urgency buckets the safety buffer the same way the goal list colours rows.
func (g Goal) Urgency() Urgency {
	switch {
	case g.Safebuf < 1:
		return UrgencyEmergency
	case g.Safebuf == 1:
		return UrgencyTomorrow
	case g.Safebuf == 2:
		return UrgencyTwoDays
	case g.Safebuf < 7:
		return UrgencySafe
	default:
		return UrgencyVerySafe
	}
}

func (g Goal) IsEmergency() bool {
	return g.Safebuf < 1
}

func (g Goal) Deadline() time.Time {
	return time.Unix(g.Losedate, 0)
}

// DeadlineText renders the time until derailment relative to now, e.g. "in 2d 3h".
func (g Goal) DeadlineText(now time.Time) string {
	d := g.Deadline().Sub(now)
	past := d < 0
	if past {
		d = -d
	}
	var s string
	switch {
	case d >= 24*time.Hour:
		s = fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
	case d >= time.Hour:
		s = fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		s = fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if past {
		return s + " ago"
	}
	return "in " + s
}

// PledgeText returns "$N" for goals with money at stake.
func (g Goal) PledgeText() (string, bool) {
	if g.Pledge <= 0 {
		return "", false
	}
	return fmt.Sprintf("$%d", int(g.Pledge)), true
}

var rateUnits = map[string]string{"d": "day", "w": "week", "m": "month", "y": "year"}

// RateText returns e.g. "1.5/day" when the goal exposes a rate.
func (g Goal) RateText() (string, bool) {
	if g.Rate == nil {
		return "", false
	}
	unit, ok := rateUnits[g.Runits]
	if !ok {
		unit = g.Runits
	}
	return strconv.FormatFloat(*g.Rate, 'f', -1, 64) + "/" + unit, true
}

// Datapoint is one recorded observation. It is only ever created by a write.
type Datapoint struct {
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"`
	Daystamp  string  `json:"daystamp"` // "20240115"
	Value     float64 `json:"value"`
	Comment   string  `json:"comment"`
	RequestID *string `json:"requestid"`
}

func (d Datapoint) Time() time.Time {
	return time.Unix(d.Timestamp, 0)
}

type User struct {
	Username  string   `json:"username"`
	Timezone  string   `json:"timezone"`
	UpdatedAt int64    `json:"updated_at"`
	Goals     []string `json:"goals,omitempty"`
}

type createDatapointRequest struct {
	Value       float64 `json:"value"`
	Comment     *string `json:"comment,omitempty"`
	RequestID   string  `json:"requestid"`
	AccessToken string  `json:"access_token"`
}
