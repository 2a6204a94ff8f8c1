package engine

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler calls refresh once on Start and then every configured interval.
// Exactly one ticker is alive while running. Overlapping refresh calls are
// not serialised here.
type Scheduler struct {
	refresh func()
	unit    time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	cfg     PollConfig
	running bool
	stop    chan struct{}

	loops atomic.Int32 // live ticker goroutines
}

// NewScheduler builds a stopped scheduler. unit scales PollConfig minutes;
// pass time.Minute outside tests.
func NewScheduler(cfg PollConfig, unit time.Duration, refresh func(), logger *slog.Logger) *Scheduler {
	if unit <= 0 {
		unit = time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		refresh: refresh,
		unit:    unit,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start (re)arms the ticker with the current config and fires one refresh
// immediately. Calling it while running replaces the ticker.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

func (s *Scheduler) startLocked() {
	s.stopLocked()

	interval := s.cfg.Interval(s.unit)
	stop := make(chan struct{})
	ticker := time.NewTicker(interval)
	s.stop = stop
	s.running = true
	s.loops.Add(1)

	go func() {
		defer s.loops.Add(-1)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// a tick may be ready alongside a closed stop
				select {
				case <-stop:
					return
				default:
				}
				s.refresh()
			}
		}
	}()
	go s.refresh()

	s.logger.Info("polling started", "interval", interval)
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Info("polling stopped")
	}
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	s.running = false
}

// RefreshNow triggers a refresh out of band; the ticker is untouched.
func (s *Scheduler) RefreshNow() {
	go s.refresh()
}

// Reconfigure stores cfg and, if running, restarts with the new interval.
func (s *Scheduler) Reconfigure(cfg PollConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if s.running {
		s.startLocked()
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) Config() PollConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}
