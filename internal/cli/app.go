package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/sadopc/beebar/internal/auth"
	"github.com/sadopc/beebar/internal/beeminder"
	"github.com/sadopc/beebar/internal/config"
	"github.com/sadopc/beebar/internal/engine"
	"github.com/sadopc/beebar/internal/logging"
	"github.com/sadopc/beebar/internal/store"
)

var errNotLoggedIn = errors.New("not logged in; run `beebar login` first")

// app is the composition root shared by every command.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	client *beeminder.Client
	auth   *auth.Authenticator
	engine *engine.Engine

	logCloser io.Closer
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFile != "" {
		cfg.Log.File = opts.LogFile
	}

	out, closer, err := logging.OpenFile(cfg.Log.File)
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})

	st, err := store.New(cfg.DBPath)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := beeminder.New(cfg.BaseURL, beeminder.WithLogger(logger.With("component", "api")))
	if err != nil {
		st.Close()
		closer.Close()
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		client:    client,
		auth:      auth.NewAuthenticator(cfg.Auth(), st, logger.With("component", "auth")),
		logCloser: closer,
	}
	a.engine = engine.New(engine.Config{
		API:            client,
		Tokens:         a.auth,
		Poll:           a.pollConfig(),
		Journal:        journal{store: st},
		Logger:         logger.With("component", "engine"),
		OnUnauthorized: a.onUnauthorized,
	})
	return a, nil
}

func (a *app) Close() {
	a.engine.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", "err", err)
	}
	a.logCloser.Close()
}

// pollConfig reads the persisted refresh interval, falling back to the
// default on a bad value.
func (a *app) pollConfig() engine.PollConfig {
	raw, err := a.store.GetSetting(store.SettingRefreshInterval)
	if err != nil {
		a.logger.Warn("read refresh interval", "err", err)
		return engine.PollConfig{}
	}
	cfg, err := engine.ParsePollConfig(raw)
	if err != nil {
		a.logger.Warn("invalid refresh interval, using default", "value", raw, "err", err)
		return engine.PollConfig{}
	}
	return cfg
}

// onUnauthorized drops the session when the service rejects the token.
func (a *app) onUnauthorized(err error) {
	a.logger.Warn("token rejected, logging out", "err", err)
	if lerr := a.auth.Logout(); lerr != nil {
		a.logger.Error("logout", "err", lerr)
	}
	a.engine.Reset()
}

func (a *app) token() (string, error) {
	tok, ok := a.auth.Token()
	if !ok {
		return "", errNotLoggedIn
	}
	return tok, nil
}

// journal records finished submissions in the store.
type journal struct {
	store *store.Store
}

func (j journal) Record(r engine.Record) error {
	sub := store.Submission{
		GoalID:     r.GoalID,
		Slug:       r.Slug,
		Value:      r.Value,
		Comment:    r.Comment,
		RequestID:  r.RequestID,
		Outcome:    r.Outcome.String(),
		Attempts:   r.Attempts,
		StartedAt:  r.Started,
		FinishedAt: r.Finished,
	}
	if r.Err != nil {
		sub.Error = r.Err.Error()
	}
	_, err := j.store.RecordSubmission(sub)
	return err
}
