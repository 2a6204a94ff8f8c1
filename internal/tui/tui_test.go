package tui

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sadopc/beebar/internal/auth"
	"github.com/sadopc/beebar/internal/beeminder"
	"github.com/sadopc/beebar/internal/engine"
	"github.com/sadopc/beebar/internal/store"
)

func ptr[T any](v T) *T { return &v }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeAPI serves goals from memory and applies created datapoints to curval.
type fakeAPI struct {
	mu        sync.Mutex
	goals     []beeminder.Goal
	points    []beeminder.Datapoint
	createErr error
}

func (f *fakeAPI) FetchGoals(ctx context.Context, token string) ([]beeminder.Goal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]beeminder.Goal(nil), f.goals...), nil
}

func (f *fakeAPI) CreateDatapoint(ctx context.Context, slug string, value float64, comment *string, token string) (beeminder.Datapoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return beeminder.Datapoint{}, f.createErr
	}
	for i := range f.goals {
		if f.goals[i].Slug == slug && f.goals[i].Curval != nil {
			f.goals[i].Curval = ptr(*f.goals[i].Curval + value)
			f.goals[i].Safebuf++
		}
	}
	return beeminder.Datapoint{ID: "dp1", Value: value}, nil
}

func (f *fakeAPI) FetchDatapoints(ctx context.Context, slug string, count int, token string) ([]beeminder.Datapoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]beeminder.Datapoint(nil), f.points...), nil
}

func sampleGoals(now time.Time) []beeminder.Goal {
	return []beeminder.Goal{
		{ID: "g2", Slug: "writing", Safebuf: 5, Losedate: now.Add(120 * time.Hour).Unix(), Curval: ptr(10.0)},
		{ID: "g1", Slug: "pushups", Safebuf: 0, Losedate: now.Add(3 * time.Hour).Unix(), Curval: ptr(1.0), Limsum: "+2 due by midnight"},
	}
}

type harness struct {
	app   App
	eng   *engine.Engine
	auth  *auth.Authenticator
	store *store.Store
	api   *fakeAPI
}

func newHarness(t *testing.T, loggedIn bool) *harness {
	t.Helper()
	s := newTestStore(t)
	if loggedIn {
		s.SaveCredential(auth.KeyAccessToken, "tok")
		s.SaveCredential(auth.KeyUsername, "alice")
	}
	a := auth.NewAuthenticator(auth.Config{
		ClientID:     "client",
		RedirectURI:  "beebar://oauth",
		AuthorizeURL: "https://example.com/apps/authorize",
	}, s, nil)

	api := &fakeAPI{goals: sampleGoals(time.Now())}
	eng := engine.New(engine.Config{
		API:    api,
		Tokens: a,
		Delays: []time.Duration{time.Millisecond, 2 * time.Millisecond},
	})
	t.Cleanup(eng.Close)

	app := NewApp(Options{Engine: eng, Auth: a, Store: s, API: api, ExportDir: t.TempDir()})
	m, _ := app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return &harness{app: m.(App), eng: eng, auth: a, store: s, api: api}
}

// sync runs a refresh and feeds the change notification to the app.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	if _, err := h.eng.Refresh(context.Background(), false); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	h.update(engineChangedMsg{})
}

func (h *harness) update(msg tea.Msg) tea.Cmd {
	m, cmd := h.app.Update(msg)
	h.app = m.(App)
	return cmd
}

func (h *harness) press(s string) tea.Cmd {
	switch s {
	case "enter":
		return h.update(tea.KeyMsg{Type: tea.KeyEnter})
	case "esc":
		return h.update(tea.KeyMsg{Type: tea.KeyEsc})
	case "space":
		return h.update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	}
	return h.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
}

// ============================================================
// App
// ============================================================

func TestNewApp(t *testing.T) {
	h := newHarness(t, true)

	if h.app.activeView != viewGoals {
		t.Fatal("default view should be goals")
	}
	if !h.app.authed {
		t.Fatal("stored credentials should count as logged in")
	}
	if h.app.showHelp || h.app.exportPicking {
		t.Fatal("help and export picker should be hidden by default")
	}
}

func TestAppLoadingState(t *testing.T) {
	h := newHarness(t, true)
	h.app.width = 0

	if out := h.app.View(); out != "Loading..." {
		t.Fatalf("expected 'Loading...', got %q", out)
	}
}

func TestAppViewStates(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	for i := range viewNames {
		h.app.activeView = viewState(i)
		if out := h.app.View(); out == "" {
			t.Fatalf("view %d rendered empty", i)
		}
	}
}

func TestAppRenderHeader(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	header := h.app.renderHeader()
	for _, name := range viewNames {
		if !strings.Contains(header, name) {
			t.Fatalf("header missing tab %q", name)
		}
	}
	if !strings.Contains(header, "1 due") {
		t.Fatalf("header should count emergencies: %q", header)
	}
	if !strings.Contains(header, "alice") {
		t.Fatal("header should show the username")
	}
}

func TestAppStatusMessage(t *testing.T) {
	h := newHarness(t, true)
	h.update(statusMsg{text: "test status"})

	if !strings.Contains(h.app.renderFooter(), "test status") {
		t.Fatal("footer should contain status message")
	}
}

func TestAppQuit(t *testing.T) {
	h := newHarness(t, true)
	cmd := h.press("q")
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should quit")
	}
}

func TestAppTabCycles(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	for i := 1; i <= len(viewNames); i++ {
		h.update(tea.KeyMsg{Type: tea.KeyTab})
		if want := viewState(i % len(viewNames)); h.app.activeView != want {
			t.Fatalf("after %d tabs view = %d, want %d", i, h.app.activeView, want)
		}
	}
}

// ============================================================
// Login
// ============================================================

func TestLoginViewWhenLoggedOut(t *testing.T) {
	h := newHarness(t, false)

	if h.app.authed {
		t.Fatal("should start logged out")
	}
	if !strings.Contains(h.app.View(), "not logged in") {
		t.Fatal("login view should be shown")
	}

	// tab keys do nothing before login
	h.press("3")
	if h.app.activeView != viewGoals {
		t.Fatal("tabs should be inert while logged out")
	}
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t, false)

	h.press("enter")
	if !strings.Contains(h.app.login.url, "client_id=client") {
		t.Fatalf("unexpected authorize url %q", h.app.login.url)
	}

	// q is text while the callback field is focused
	if cmd := h.press("q"); cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Fatal("q should not quit during login")
		}
	}

	h.app.login.input.SetValue("beebar://oauth?access_token=abc&username=bob")
	cmd := h.press("enter")
	if cmd == nil {
		t.Fatal("expected completion command")
	}
	h.update(cmd())

	if !h.app.authed {
		t.Fatal("should be logged in")
	}
	if tok, _ := h.auth.Token(); tok != "abc" {
		t.Fatalf("token = %q", tok)
	}
	if !strings.Contains(h.app.status, "bob") {
		t.Fatalf("status = %q", h.app.status)
	}
}

func TestLoginBadCallback(t *testing.T) {
	h := newHarness(t, false)

	h.press("enter")
	h.app.login.input.SetValue("beebar://oauth?username=bob")
	h.update(h.press("enter")())

	if h.app.authed {
		t.Fatal("should still be logged out")
	}
	if !errors.Is(h.app.login.err, auth.ErrMissingToken) {
		t.Fatalf("err = %v", h.app.login.err)
	}
	if h.app.login.url != "" {
		t.Fatal("failed flow should reset")
	}
}

func TestLoginCancel(t *testing.T) {
	h := newHarness(t, false)

	h.press("enter")
	h.press("esc")
	if h.app.login.url != "" || h.auth.Authenticating() {
		t.Fatal("esc should cancel the flow")
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("L")
	if h.app.authed {
		t.Fatal("should be logged out")
	}
	if _, ok := h.auth.Token(); ok {
		t.Fatal("credentials should be cleared")
	}
	if n := len(h.eng.Snapshot().Goals); n != 0 {
		t.Fatalf("engine should be reset, has %d goals", n)
	}
}

func TestSessionExpiry(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.auth.Logout()
	h.update(engineChangedMsg{})

	if h.app.authed {
		t.Fatal("app should notice the dropped session")
	}
	if !h.app.statusErr {
		t.Fatal("expiry should be reported as an error")
	}
}

// ============================================================
// Goals view
// ============================================================

func TestGoalsSortedAndRendered(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	goals := h.app.goals.snap.Goals
	if len(goals) != 2 || goals[0].Slug != "pushups" {
		t.Fatalf("expected pushups first, got %+v", goals)
	}
	out := h.app.goals.view()
	if !strings.Contains(out, "pushups") || !strings.Contains(out, "writing") {
		t.Fatal("goal list missing slugs")
	}
}

func TestGoalsEmptyAndLoading(t *testing.T) {
	h := newHarness(t, true)
	if !strings.Contains(h.app.goals.view(), "No goals yet") {
		t.Fatal("expected empty state")
	}
	h.app.goals.snap.Loading = true
	if !strings.Contains(h.app.goals.view(), "Loading goals") {
		t.Fatal("expected loading state")
	}
}

func TestGoalsCursorFollowsSelection(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("j")
	if sel := h.app.goals.selected; sel != "g2" {
		t.Fatalf("selected = %q, want g2", sel)
	}

	// writing becomes the most urgent goal and moves to the top
	h.api.mu.Lock()
	h.api.goals[0].Safebuf = -1
	h.api.mu.Unlock()
	h.sync(t)

	if h.app.goals.cursor != 0 || h.app.goals.selected != "g2" {
		t.Fatalf("cursor = %d selected = %q", h.app.goals.cursor, h.app.goals.selected)
	}
}

func TestGoalsMoveClamps(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("k")
	if h.app.goals.cursor != 0 {
		t.Fatal("cursor should not go above first row")
	}
	for range 5 {
		h.press("j")
	}
	if h.app.goals.cursor != 1 {
		t.Fatal("cursor should stop at last row")
	}
}

func TestGoalsExpand(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("space")
	if h.app.goals.expanded != "g1" {
		t.Fatal("space should expand the selected goal")
	}
	if !strings.Contains(h.app.goals.view(), "+2 due by midnight") {
		t.Fatal("expanded row should show limsum")
	}
	h.press("space")
	if h.app.goals.expanded != "" {
		t.Fatal("space again should collapse")
	}
}

func TestGoalsInputCapturesKeys(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("a")
	if !h.app.goals.editing {
		t.Fatal("a should start editing")
	}
	if cmd := h.press("q"); cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Fatal("q should be typed, not quit")
		}
	}
	if got := h.eng.Input("g1"); got != "q" {
		t.Fatalf("engine input = %q", got)
	}

	// esc leaves the buffer in place
	h.press("esc")
	if h.app.goals.editing {
		t.Fatal("esc should stop editing")
	}
	if got := h.eng.Input("g1"); got != "q" {
		t.Fatalf("buffer lost: %q", got)
	}
}

func TestGoalsSubmitConfirmed(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("a")
	h.press("2")
	cmd := h.press("enter")
	if cmd == nil {
		t.Fatal("expected submit command")
	}

	msg, ok := cmd().(submitDoneMsg)
	if !ok {
		t.Fatal("expected submitDoneMsg")
	}
	if msg.result.Outcome != engine.OutcomeConfirmed {
		t.Fatalf("outcome = %v", msg.result.Outcome)
	}
	h.update(msg)

	if !strings.Contains(h.app.status, "pushups: datapoint added") {
		t.Fatalf("status = %q", h.app.status)
	}
	if got := h.eng.Input("g1"); got != "" {
		t.Fatalf("input should be cleared, got %q", got)
	}
}

func TestGoalsSubmitInvalid(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("a")
	h.press("x")
	cmd := h.press("enter")

	msg, ok := cmd().(statusMsg)
	if !ok || !msg.isError {
		t.Fatalf("expected error status, got %#v", msg)
	}
	if got := h.eng.Input("g1"); got != "x" {
		t.Fatalf("invalid input should stay buffered, got %q", got)
	}
}

func TestGoalsSubmitFailure(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)
	h.api.createErr = &beeminder.ServerError{StatusCode: 500}

	h.press("a")
	h.press("3")
	h.update(h.press("enter")())

	if !h.app.statusErr || !strings.Contains(h.app.status, "submit failed") {
		t.Fatalf("status = %q", h.app.status)
	}
	if got := h.eng.Input("g1"); got != "3" {
		t.Fatalf("failed submit should keep input, got %q", got)
	}
}

func TestGoalsCommentFormEsc(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("c")
	if !h.app.goals.formActive {
		t.Fatal("c should open the comment form")
	}
	if !h.app.isCapturing() {
		t.Fatal("form should capture keys")
	}
	h.press("esc")
	if h.app.goals.formActive {
		t.Fatal("esc should close the form")
	}
}

func TestGoalsDismissError(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)
	h.api.createErr = errors.New("boom")

	h.press("a")
	h.press("1")
	h.update(h.press("enter")())
	h.update(engineChangedMsg{})
	if h.app.goals.snap.Err == nil {
		t.Fatal("expected recorded error")
	}
	if !strings.Contains(h.app.goals.view(), "boom") {
		t.Fatal("error banner missing")
	}

	h.press("d")
	h.update(engineChangedMsg{})
	if h.app.goals.snap.Err != nil {
		t.Fatal("d should dismiss the error")
	}
}

// ============================================================
// Detail
// ============================================================

func TestDetailLoadsDatapoints(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)
	now := time.Now()
	h.api.points = []beeminder.Datapoint{
		{ID: "b", Timestamp: now.Unix(), Daystamp: "20240116", Value: 3, Comment: "evening"},
		{ID: "a", Timestamp: now.Add(-24 * time.Hour).Unix(), Daystamp: "20240115", Value: -1},
	}

	cmd := h.press("2")
	if h.app.activeView != viewDetail || h.app.detail.goal.Slug != "pushups" {
		t.Fatal("2 should open detail for the selected goal")
	}
	h.update(cmd())

	points := h.app.detail.points
	if len(points) != 2 || points[0].ID != "a" {
		t.Fatalf("points should be oldest first: %+v", points)
	}
	out := h.app.detail.view()
	if !strings.Contains(out, "evening") {
		t.Fatal("detail should list comments")
	}
}

func TestDetailIgnoresOtherGoal(t *testing.T) {
	d := newDetailModel(nil, nil)
	d.goal = beeminder.Goal{ID: "g1", Slug: "pushups"}

	d, _ = d.update(datapointsMsg{slug: "writing", points: []beeminder.Datapoint{{ID: "x"}}})
	if d.points != nil {
		t.Fatal("datapoints for another goal should be ignored")
	}
}

func TestDetailError(t *testing.T) {
	d := newDetailModel(nil, nil)
	d.setSize(100, 30)
	d.goal = beeminder.Goal{ID: "g1", Slug: "pushups"}

	d, _ = d.update(datapointsMsg{slug: "pushups", err: errors.New("offline")})
	if !strings.Contains(d.view(), "offline") {
		t.Fatal("load error should be shown")
	}
}

func TestDayLabel(t *testing.T) {
	if got := dayLabel(beeminder.Datapoint{Daystamp: "20240115"}); got != "01/15" {
		t.Fatalf("dayLabel = %q", got)
	}
	ts := time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local)
	if got := dayLabel(beeminder.Datapoint{Timestamp: ts.Unix()}); got != "03/09" {
		t.Fatalf("dayLabel fallback = %q", got)
	}
}

// ============================================================
// History
// ============================================================

func TestHistoryLoadsSubmissions(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.RecordSubmission(store.Submission{GoalID: "g1", Slug: "pushups", Value: 2, Outcome: "confirmed", StartedAt: now, FinishedAt: now})
	s.RecordSubmission(store.Submission{GoalID: "g1", Slug: "pushups", Value: 1, Outcome: "failed", Error: "server error", StartedAt: now, FinishedAt: now.Add(time.Second)})

	hm := newHistoryModel(s)
	hm.setSize(120, 30)
	hm, _ = hm.update(hm.refresh()())

	if len(hm.subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(hm.subs))
	}
	out := hm.view()
	if !strings.Contains(out, "failed") || !strings.Contains(out, "server error") {
		t.Fatal("selected failed submission should show its error")
	}

	hm, _ = hm.update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")})
	if hm.cursor != 1 {
		t.Fatal("j should move down")
	}
}

func TestHistoryEmpty(t *testing.T) {
	hm := newHistoryModel(newTestStore(t))
	hm.setSize(80, 20)
	if !strings.Contains(hm.view(), "Nothing submitted yet") {
		t.Fatal("expected empty state")
	}
}

// ============================================================
// Settings
// ============================================================

func TestSettingsSave(t *testing.T) {
	h := newHarness(t, true)
	sm := h.app.settings

	*sm.interval = 10
	*sm.launchAtLogin = true
	if err := sm.saveSettings(); err != nil {
		t.Fatal(err)
	}

	if v, _ := h.store.GetSetting(store.SettingRefreshInterval); v != "10" {
		t.Fatalf("interval = %q", v)
	}
	if on, _ := h.store.LaunchAtLogin(); !on {
		t.Fatal("launch at login should be on")
	}
	if m := h.eng.Snapshot().Poll.Minutes(); m != 10 {
		t.Fatalf("engine interval = %d", m)
	}
}

func TestSettingsFormOpensWithStoredValues(t *testing.T) {
	h := newHarness(t, true)
	h.store.SetSetting(store.SettingRefreshInterval, "15")

	h.press("4")
	h.press("enter")
	if !h.app.settings.formActive {
		t.Fatal("enter should open the form")
	}
	if *h.app.settings.interval != 15 {
		t.Fatalf("form interval = %d", *h.app.settings.interval)
	}
	h.press("esc")
	if h.app.settings.formActive {
		t.Fatal("esc should close the form")
	}
}

func TestFormatSettingValue(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{store.SettingRefreshInterval, "10", "every 10 min"},
		{store.SettingRefreshInterval, "", "every 5 min"},
		{store.SettingLaunchAtLogin, "true", "on"},
		{store.SettingLaunchAtLogin, "false", "off"},
		{"other", "x", "x"},
	}
	for _, tt := range tests {
		if got := formatSettingValue(tt.key, tt.value); got != tt.want {
			t.Errorf("formatSettingValue(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
		}
	}
}

// ============================================================
// Export
// ============================================================

func TestExportPicker(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	h.press("e")
	if !h.app.exportPicking {
		t.Fatal("e should open the export picker")
	}
	h.press("j")
	cmd := h.press("enter")
	msg, ok := cmd().(exportDoneMsg)
	if !ok {
		t.Fatal("expected exportDoneMsg")
	}
	if !strings.HasSuffix(msg.path, ".json") {
		t.Fatalf("path = %q", msg.path)
	}
	if _, err := os.Stat(msg.path); err != nil {
		t.Fatal(err)
	}
	h.update(msg)
	if !strings.Contains(h.app.status, "Exported to") {
		t.Fatalf("status = %q", h.app.status)
	}
}

func TestExportCSV(t *testing.T) {
	h := newHarness(t, true)
	h.sync(t)

	msg, ok := h.app.doExport(0)().(exportDoneMsg)
	if !ok {
		t.Fatal("expected exportDoneMsg")
	}
	data, err := os.ReadFile(msg.path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "pushups") {
		t.Fatal("csv should contain goals")
	}
}

// ============================================================
// Helpers
// ============================================================

func TestDescribeResult(t *testing.T) {
	tests := []struct {
		outcome engine.Outcome
		err     error
		want    string
		isErr   bool
	}{
		{engine.OutcomeConfirmed, nil, "pushups: datapoint added", false},
		{engine.OutcomeUnconfirmed, nil, "pushups: sent, not yet reflected", false},
		{engine.OutcomeCancelled, nil, "pushups: stopped waiting", false},
		{engine.OutcomeFailed, errors.New("boom"), "pushups: submit failed: boom", true},
	}
	for _, tt := range tests {
		got, isErr := describeResult(submitDoneMsg{slug: "pushups", result: engine.Result{Outcome: tt.outcome, Err: tt.err}})
		if got != tt.want || isErr != tt.isErr {
			t.Errorf("describeResult(%v) = %q, %v", tt.outcome, got, isErr)
		}
	}
}

func TestFormatAgo(t *testing.T) {
	now := time.Now()
	if got := formatAgo(time.Time{}, now); got != "never" {
		t.Fatalf("zero = %q", got)
	}
	if got := formatAgo(now.Add(-10*time.Second), now); got != "just now" {
		t.Fatalf("10s = %q", got)
	}
	if got := formatAgo(now.Add(-5*time.Minute), now); got != "5m ago" {
		t.Fatalf("5m = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("pushups", 10); got != "pushups" {
		t.Fatalf("short = %q", got)
	}
	if got := truncate("pushups", 5); got != "push…" {
		t.Fatalf("long = %q", got)
	}
}

func TestUrgencyColors(t *testing.T) {
	seen := map[string]bool{}
	for u := beeminder.UrgencyEmergency; u <= beeminder.UrgencyVerySafe; u++ {
		seen[string(urgencyColor(u))] = true
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 distinct urgency colours, got %d", len(seen))
	}
}

// ============================================================
// Key bindings
// ============================================================

func TestKeyMapFullHelp(t *testing.T) {
	if len(keys.ShortHelp()) == 0 {
		t.Fatal("short help should have bindings")
	}
	for i, g := range keys.FullHelp() {
		if len(g) == 0 {
			t.Fatalf("full help group %d is empty", i)
		}
	}
}
