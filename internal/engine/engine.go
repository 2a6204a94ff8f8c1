// Package engine keeps the local goal snapshot in sync with the service: a
// periodic poller, datapoint submission, and post-write confirmation.
//
// All mutation of the GoalStore happens on a single owner goroutine. Network
// calls and backoff sleeps run on their own goroutines and marshal their
// results back to the owner before touching state.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sadopc/beebar/internal/beeminder"
)

// ErrNoCredentials is returned by Refresh when no token is available. It is
// never recorded as the engine's error.
var ErrNoCredentials = errors.New("not logged in")

// API is the subset of the service client the engine drives.
type API interface {
	FetchGoals(ctx context.Context, token string) ([]beeminder.Goal, error)
	CreateDatapoint(ctx context.Context, slug string, value float64, comment *string, token string) (beeminder.Datapoint, error)
}

// TokenSource yields the current access token. The engine asks for it on
// every call and keeps no copy.
type TokenSource interface {
	Token() (string, bool)
}

// Record describes a finished submission for the journal.
type Record struct {
	GoalID    string
	Slug      string
	Value     float64
	Comment   string
	RequestID string
	Outcome   Outcome
	Attempts  int
	Err       error
	Started   time.Time
	Finished  time.Time
}

type Journal interface {
	Record(r Record) error
}

// Result is delivered once per accepted submission.
type Result struct {
	GoalID    string
	Outcome   Outcome
	Attempts  int
	Datapoint *beeminder.Datapoint
	Err       error
}

type Config struct {
	API    API
	Tokens TokenSource
	Poll   PollConfig

	// Delays overrides DefaultDelays.
	Delays []time.Duration
	// IntervalUnit scales PollConfig minutes; zero means time.Minute.
	IntervalUnit time.Duration

	Journal Journal
	Logger  *slog.Logger
	// OnUnauthorized runs (off the owner goroutine) whenever a call reports
	// an invalid token.
	OnUnauthorized func(error)
}

// Snapshot is a consistent copy of engine state for presentation.
type Snapshot struct {
	Goals          []beeminder.Goal // sorted by urgency
	Status         map[string]Status
	Inputs         map[string]string
	Loading        bool
	Err            error
	LastRefresh    time.Time
	EmergencyCount int
	Polling        bool
	Poll           PollConfig
}

type state struct {
	store       *GoalStore
	loading     int
	err         error
	lastRefresh time.Time
	appliedSeq  int64
}

type Engine struct {
	api            API
	tokens         TokenSource
	journal        Journal
	logger         *slog.Logger
	onUnauthorized func(error)
	delays         []time.Duration
	scheduler      *Scheduler
	clock          *Clock

	ops     chan func(*state)
	changed chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	st state
}

func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	delays := cfg.Delays
	if delays == nil {
		delays = DefaultDelays
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		api:            cfg.API,
		tokens:         cfg.Tokens,
		journal:        cfg.Journal,
		logger:         logger,
		onUnauthorized: cfg.OnUnauthorized,
		delays:         delays,
		clock:          NewClock(),
		ops:            make(chan func(*state), 64),
		changed:        make(chan struct{}, 1),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		st:             state{store: NewGoalStore()},
	}
	e.scheduler = NewScheduler(cfg.Poll, cfg.IntervalUnit, func() {
		e.Refresh(e.ctx, true)
	}, logger.With("component", "scheduler"))

	go e.loop()
	return e
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case fn := <-e.ops:
			fn(&e.st)
			e.notify()
		}
	}
}

func (e *Engine) notify() {
	select {
	case e.changed <- struct{}{}:
	default:
	}
}

// do runs fn on the owner goroutine and waits for it. It reports false if
// the engine has shut down.
func (e *Engine) do(fn func(*state)) bool {
	ran := make(chan struct{})
	op := func(st *state) {
		fn(st)
		close(ran)
	}
	select {
	case e.ops <- op:
	case <-e.done:
		return false
	}
	select {
	case <-ran:
		return true
	case <-e.done:
		return false
	}
}

// Changed fires (coalesced) after every state mutation. Read Snapshot after
// receiving.
func (e *Engine) Changed() <-chan struct{} {
	return e.changed
}

// Start begins polling: one refresh now, then every configured interval.
func (e *Engine) Start() {
	e.scheduler.Start()
}

func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// RefreshNow triggers an out-of-band refresh without waiting for it.
func (e *Engine) RefreshNow() {
	e.scheduler.RefreshNow()
}

// Reconfigure applies a new polling interval, restarting the ticker if it is
// running.
func (e *Engine) Reconfigure(cfg PollConfig) {
	e.scheduler.Reconfigure(cfg)
	e.notify()
}

// Close stops polling, cancels all confirmations, and shuts the owner loop
// down. It waits for background work to return.
func (e *Engine) Close() {
	e.once.Do(func() {
		e.scheduler.Stop()
		e.cancel()
		<-e.done
		e.wg.Wait()
	})
}

// Refresh fetches the goal list and replaces the snapshot. Without a token
// it does nothing. Only showSpinner refreshes raise the loading flag. A
// failure is recorded and leaves the previous snapshot in place; a result
// older than the snapshot already applied is discarded.
func (e *Engine) Refresh(ctx context.Context, showSpinner bool) ([]beeminder.Goal, error) {
	token, ok := e.tokens.Token()
	if !ok {
		return nil, ErrNoCredentials
	}

	seq := e.clock.Next()
	if showSpinner {
		e.do(func(st *state) { st.loading++ })
	}

	goals, err := e.api.FetchGoals(ctx, token)

	e.do(func(st *state) {
		if showSpinner {
			st.loading--
		}
		if err != nil {
			if ctx.Err() == nil {
				st.err = err
				level := slog.LevelError
				if beeminder.Transient(err) {
					level = slog.LevelWarn
				}
				e.logger.Log(ctx, level, "refresh failed", "err", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		if seq < st.appliedSeq {
			e.logger.Debug("discarding stale refresh", "seq", seq, "applied", st.appliedSeq)
			return
		}
		st.appliedSeq = seq
		st.store.Replace(goals)
		st.lastRefresh = time.Now()
		e.logger.Debug("refresh applied", "seq", seq, "goals", len(goals))
	})

	if err != nil {
		e.unauthorized(err)
		return nil, err
	}
	return goals, nil
}

func (e *Engine) unauthorized(err error) {
	if e.onUnauthorized != nil && beeminder.IsUnauthorized(err) {
		e.onUnauthorized(err)
	}
}

func (e *Engine) SetInput(goalID, text string) {
	e.do(func(st *state) { st.store.SetInput(goalID, text) })
}

func (e *Engine) Input(goalID string) string {
	var s string
	e.do(func(st *state) { s = st.store.Input(goalID) })
	return s
}

// SubmitDatapoint writes a value to the goal and confirms it in the
// background. rawValue falls back to the goal's buffered input when empty.
// Unknown goals, missing or unparseable values, and a missing token are
// ignored and return nil. A submission to a goal that already has one in
// flight cancels the earlier confirmation.
func (e *Engine) SubmitDatapoint(goalID, rawValue, comment string) <-chan Result {
	token, ok := e.tokens.Token()
	if !ok {
		return nil
	}

	var (
		p    *pending
		slug string
	)
	e.do(func(st *state) {
		goal, ok := st.store.Goal(goalID)
		if !ok {
			return
		}
		text := strings.TrimSpace(rawValue)
		if text == "" {
			text = strings.TrimSpace(st.store.Input(goalID))
		}
		value, ok := parseValue(text)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(e.ctx)
		p = &pending{
			goalID:   goalID,
			previous: goal,
			value:    value,
			comment:  comment,
			started:  time.Now(),
			cancel:   cancel,
			results:  make(chan Result, 1),
		}
		if prev := st.store.begin(p); prev != nil {
			e.logger.Info("superseding pending submission", "goal", goal.Slug)
		}
		slug = goal.Slug
		e.wg.Add(1)
		go e.submit(ctx, p, slug, token)
	})
	if p == nil {
		return nil
	}
	return p.results
}

func parseValue(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (e *Engine) submit(ctx context.Context, p *pending, slug, token string) {
	defer e.wg.Done()
	logger := e.logger.With("goal", slug, "value", p.value)

	var comment *string
	if p.comment != "" {
		comment = &p.comment
	}

	dp, err := e.api.CreateDatapoint(ctx, slug, p.value, comment, token)
	if err != nil {
		outcome := OutcomeFailed
		if ctx.Err() != nil {
			outcome = OutcomeCancelled
			err = nil
		}
		e.do(func(st *state) {
			if err != nil {
				st.err = err
			}
			st.store.finish(p)
		})
		if err != nil {
			logger.Warn("submit datapoint failed", "err", err)
			e.unauthorized(err)
		}
		e.complete(p, slug, outcome, nil, err)
		return
	}
	logger.Info("datapoint submitted", "id", dp.ID)

	e.do(func(st *state) {
		if !st.store.current(p) {
			return
		}
		st.store.SetInput(p.goalID, "")
		st.store.setStatus(p.goalID, StatusUpdating)
	})

	c := Confirmer{
		Delays: e.delays,
		Refresh: func(ctx context.Context) ([]beeminder.Goal, error) {
			return e.Refresh(ctx, false)
		},
		Logger: e.logger,
	}
	outcome, attempts := c.Run(ctx, p.previous, p.value)
	p.attempts = attempts

	e.do(func(st *state) { st.store.finish(p) })
	e.complete(p, slug, outcome, &dp, nil)
}

func (e *Engine) complete(p *pending, slug string, outcome Outcome, dp *beeminder.Datapoint, err error) {
	p.cancel()
	if e.journal != nil {
		r := Record{
			GoalID:   p.goalID,
			Slug:     slug,
			Value:    p.value,
			Comment:  p.comment,
			Outcome:  outcome,
			Attempts: p.attempts,
			Err:      err,
			Started:  p.started,
			Finished: time.Now(),
		}
		if dp != nil && dp.RequestID != nil {
			r.RequestID = *dp.RequestID
		}
		if jerr := e.journal.Record(r); jerr != nil {
			e.logger.Warn("journal submission", "err", jerr)
		}
	}
	p.deliver(Result{
		GoalID:    p.goalID,
		Outcome:   outcome,
		Attempts:  p.attempts,
		Datapoint: dp,
		Err:       err,
	})
}

// CancelConfirmation stops the goal's in-flight submission, if any, and
// returns it to idle immediately.
func (e *Engine) CancelConfirmation(goalID string) {
	e.do(func(st *state) {
		if st.store.cancel(goalID) {
			e.logger.Info("confirmation cancelled", "goal_id", goalID)
		}
	})
}

// DismissError clears the recorded error. Successful refreshes do not.
func (e *Engine) DismissError() {
	e.do(func(st *state) { st.err = nil })
}

// Reset cancels every submission and drops the snapshot, e.g. on logout.
// Refreshes already in flight are discarded when they complete.
func (e *Engine) Reset() {
	e.do(func(st *state) {
		st.store.reset()
		st.err = nil
		st.lastRefresh = time.Time{}
		st.appliedSeq = e.clock.Next()
	})
}

func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	e.do(func(st *state) {
		snap = Snapshot{
			Goals:          st.store.Sorted(),
			Status:         st.store.statuses(),
			Inputs:         st.store.inputsCopy(),
			Loading:        st.loading > 0,
			Err:            st.err,
			LastRefresh:    st.lastRefresh,
			EmergencyCount: st.store.EmergencyCount(),
		}
	})
	snap.Polling = e.scheduler.Running()
	snap.Poll = e.scheduler.Config()
	return snap
}

// Goal looks a goal up by id or slug in the current snapshot.
func (e *Engine) Goal(idOrSlug string) (beeminder.Goal, bool) {
	var (
		g  beeminder.Goal
		ok bool
	)
	e.do(func(st *state) {
		g, ok = st.store.Goal(idOrSlug)
		if !ok {
			g, ok = st.store.GoalBySlug(idOrSlug)
		}
	})
	return g, ok
}
