package tui

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sadopc/beebar/internal/beeminder"
)

// detailCount is how many recent datapoints the chart shows.
const detailCount = 14

type detailModel struct {
	api    DatapointFetcher
	auth   Authenticator
	width  int
	height int

	goal    beeminder.Goal
	points  []beeminder.Datapoint // oldest first
	loading bool
	err     error

	chart barchart.Model
}

func newDetailModel(api DatapointFetcher, a Authenticator) detailModel {
	return detailModel{
		api:   api,
		auth:  a,
		chart: barchart.New(60, 12),
	}
}

func (d *detailModel) setSize(w, h int) {
	d.width = w
	d.height = h
	d.buildChart()
}

// show switches the view to goal and loads its datapoints unless they are
// already on screen.
func (d detailModel) show(goal beeminder.Goal) (detailModel, tea.Cmd) {
	same := d.goal.ID == goal.ID
	d.goal = goal
	if same && d.points != nil {
		return d, nil
	}
	d.points = nil
	d.err = nil
	d.buildChart()
	cmd := d.refresh()
	return d, cmd
}

func (d *detailModel) refresh() tea.Cmd {
	if d.api == nil || d.goal.Slug == "" {
		return nil
	}
	token, ok := d.auth.Token()
	if !ok {
		return nil
	}
	d.loading = true
	api, slug := d.api, d.goal.Slug
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		points, err := api.FetchDatapoints(ctx, slug, detailCount, token)
		return datapointsMsg{slug: slug, points: points, err: err}
	}
}

func (d detailModel) update(msg tea.Msg) (detailModel, tea.Cmd) {
	switch msg := msg.(type) {
	case datapointsMsg:
		if msg.slug != d.goal.Slug {
			return d, nil
		}
		d.loading = false
		d.err = msg.err
		if msg.err == nil {
			points := append([]beeminder.Datapoint{}, msg.points...)
			sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })
			d.points = points
		}
		d.buildChart()
		return d, nil

	case submitDoneMsg:
		// a new datapoint on this goal is worth a reload
		if msg.slug == d.goal.Slug && msg.result.Datapoint != nil {
			cmd := d.refresh()
			return d, cmd
		}

	case tea.KeyMsg:
		if key.Matches(msg, keys.Refresh) {
			cmd := d.refresh()
			return d, cmd
		}
	}
	return d, nil
}

func (d *detailModel) buildChart() {
	chartWidth := max(20, d.width-8)
	chartHeight := 10
	if d.height > 30 {
		chartHeight = 14
	}

	d.chart = barchart.New(chartWidth, chartHeight)

	color := urgencyColor(d.goal.Urgency())
	var bars []barchart.BarData
	for _, p := range d.points {
		style := lipgloss.NewStyle().Foreground(color)
		if p.Value < 0 {
			style = lipgloss.NewStyle().Foreground(colorError)
		}
		bars = append(bars, barchart.BarData{
			Label: dayLabel(p),
			Values: []barchart.BarValue{{
				Name:  formatValue(p.Value),
				Value: math.Abs(p.Value),
				Style: style,
			}},
		})
	}

	d.chart.PushAll(bars)
	d.chart.Draw()
}

func dayLabel(p beeminder.Datapoint) string {
	if len(p.Daystamp) == 8 {
		return p.Daystamp[4:6] + "/" + p.Daystamp[6:]
	}
	return p.Time().Local().Format("01/02")
}

func (d detailModel) view() string {
	w := d.width - 4

	if d.goal.ID == "" {
		return panelStyle.Width(w).Render(mutedStyle.Render("Select a goal on the Goals tab first."))
	}

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render(d.goal.Slug), "  ",
		urgencyStyle(d.goal.Urgency()).Render(d.goal.DeadlineText(time.Now())), "  ",
		subtitleStyle.Render(d.goal.Limsum),
	)

	var body string
	switch {
	case d.err != nil:
		body = errorStyle.Render("Could not load datapoints: " + d.err.Error())
	case d.loading && len(d.points) == 0:
		body = mutedStyle.Render("Loading datapoints...")
	case len(d.points) == 0:
		body = mutedStyle.Render("No datapoints yet")
	default:
		body = lipgloss.JoinVertical(lipgloss.Left, d.chart.View(), "", d.renderTable(w))
	}

	footer := mutedStyle.Render("  r: reload")
	if d.goal.GraphURL != "" {
		footer = mutedStyle.Render("  graph: "+d.goal.GraphURL) + "\n" + footer
	}

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, "", body, "", footer),
	)
}

func (d detailModel) renderTable(w int) string {
	rows := []string{
		mutedStyle.Render(fmt.Sprintf("  %-12s %10s  %s", "Date", "Value", "Comment")),
		mutedStyle.Render("  " + strings.Repeat("─", max(0, min(w-6, 54)))),
	}
	// newest first, a handful only
	for i := len(d.points) - 1; i >= 0 && i >= len(d.points)-5; i-- {
		p := d.points[i]
		rows = append(rows, fmt.Sprintf("  %-12s %10s  %s",
			p.Time().Local().Format("Jan 02 15:04"), formatValue(p.Value), truncate(p.Comment, max(10, w-32)),
		))
	}
	return strings.Join(rows, "\n")
}
