package framework

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/goatkit/moddata/internal/saves"
)

type autosaveOptions struct {
	cron     *cron.Cron
	parser   cron.Parser
	dispatch func(func())
}

// AutosaveOption configures an Autosave.
type AutosaveOption func(*autosaveOptions)

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) AutosaveOption {
	return func(o *autosaveOptions) {
		o.cron = c
	}
}

// WithCronParser allows replacing the cron expression parser.
func WithCronParser(p cron.Parser) AutosaveOption {
	return func(o *autosaveOptions) {
		o.parser = p
	}
}

// WithDispatcher hands each scheduled pass to dispatch, typically a queue the
// host drains on its main loop. The full game-save pass then runs wherever
// dispatch runs it.
func WithDispatcher(dispatch func(func())) AutosaveOption {
	return func(o *autosaveOptions) {
		o.dispatch = dispatch
	}
}

// Autosave runs the game-save pass on a schedule. Scopes the host has not
// loaded yet are skipped.
//
// Plain save fields belong to the host goroutine. Without a dispatcher the
// scheduled pass captures only Tracked values and writes the rest as they
// were last saved.
type Autosave struct {
	cron     *cron.Cron
	manager  *saves.Manager
	logger   *slog.Logger
	spec     string
	dispatch func(func())
	runs     atomic.Int64
}

// NewAutosave parses spec and schedules the pass. Call Start to begin.
func NewAutosave(m *saves.Manager, spec string, logger *slog.Logger, opts ...AutosaveOption) (*Autosave, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := autosaveOptions{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cron == nil {
		o.cron = cron.New(cron.WithParser(o.parser))
	}

	schedule, err := o.parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse autosave schedule %q: %w", spec, err)
	}

	a := &Autosave{cron: o.cron, manager: m, logger: logger, spec: spec, dispatch: o.dispatch}
	a.cron.Schedule(schedule, cron.FuncJob(a.Run))
	return a, nil
}

// Run performs one scheduled pass. With a dispatcher the full pass is
// handed to it; otherwise a Tracked-only pass runs in the calling goroutine.
func (a *Autosave) Run() {
	if a.dispatch != nil {
		a.dispatch(func() { a.pass(a.manager.UpdateAll) })
		return
	}
	a.pass(a.manager.UpdateTracked)
}

func (a *Autosave) pass(update func(saves.Scope)) {
	a.runs.Add(1)
	for _, scope := range []saves.Scope{saves.Global, saves.Local} {
		if !a.manager.Hydrated(scope) {
			a.logger.Debug("skipping autosave, scope not loaded yet", "scope", scope)
			continue
		}
		update(scope)
		a.manager.Serialize(scope)
	}
	a.logger.Debug("autosave complete", "schedule", a.spec)
}

// Runs returns how many passes have run.
func (a *Autosave) Runs() int64 { return a.runs.Load() }

// Start starts the scheduler in its own goroutine.
func (a *Autosave) Start() {
	a.cron.Start()
	a.logger.Info("autosave scheduled", "schedule", a.spec)
}

// Stop stops the scheduler and waits for a running pass to finish.
func (a *Autosave) Stop() {
	<-a.cron.Stop().Done()
}
