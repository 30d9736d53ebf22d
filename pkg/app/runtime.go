package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/dyike/StockPilot/config"
	"github.com/dyike/StockPilot/internal/logger"
)

const (
	TopicEngineReloaded     = "engine.reloaded"
	TopicEngineReloadFailed = "engine.reload_failed"
)

// ReloadEvent is the JSON payload handed to the notifier after every build.
type ReloadEvent struct {
	Version     uint64 `json:"version,omitempty"`
	BuiltAt     string `json:"built_at,omitempty"`
	AgentMode   string `json:"agent_mode"`
	LLMProvider string `json:"llm_provider"`
	Error       string `json:"error,omitempty"`
}

type EngineBuilder func(config.Config) (*Engine, error)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

// WithNotifier receives a topic and a ReloadEvent encoded as JSON.
func WithNotifier(fn func(topic, payload string)) Option {
	return func(r *Runtime) { r.notify = fn }
}

// WithoutWatch skips the config file watcher, for one-shot commands.
func WithoutWatch() Option {
	return func(r *Runtime) { r.watch = false }
}

// Runtime hands out the analysis engine built from the current settings. With
// watching on, an edited config file produces a fresh engine; when that build
// fails the running one stays in place.
type Runtime struct {
	settings *config.Manager
	current  atomic.Pointer[Engine]

	builder EngineBuilder
	notify  func(string, string)
	watch   bool
	stop    context.CancelFunc
}

func NewRuntime(ctx context.Context, settings *config.Manager, opts ...Option) (*Runtime, error) {
	if settings == nil {
		return nil, errors.New("runtime needs a config manager")
	}
	rt := &Runtime{settings: settings, builder: BuildEngine, watch: true}
	for _, opt := range opts {
		opt(rt)
	}

	if err := rt.rebuild(ctx, settings.Get()); err != nil {
		return nil, err
	}
	if rt.watch {
		if err := rt.startWatching(ctx); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (r *Runtime) startWatching(ctx context.Context) error {
	watchCtx, stop := context.WithCancel(ctx)
	err := r.settings.Watch(watchCtx, func(cfg config.Config) {
		// the previous engine keeps serving on failure
		_ = r.rebuild(watchCtx, cfg)
	})
	if err != nil {
		stop()
		return err
	}
	r.stop = stop
	return nil
}

// Engine is the most recently built engine; safe for concurrent use.
func (r *Runtime) Engine() *Engine {
	return r.current.Load()
}

func (r *Runtime) Close() {
	if r.stop != nil {
		r.stop()
	}
}

// UpdateConfigJSON persists a partial settings change. When watching, the new
// engine is in place by the time it returns.
func (r *Runtime) UpdateConfigJSON(jsonStr string) error {
	return r.settings.UpdateFromJSON(jsonStr)
}

func (r *Runtime) rebuild(ctx context.Context, cfg config.Config) error {
	ev := ReloadEvent{AgentMode: cfg.AgentMode, LLMProvider: cfg.LLMProvider}

	engine, err := r.builder(cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "engine build failed", err, "agent_mode", cfg.AgentMode)
		ev.Error = err.Error()
		r.publish(TopicEngineReloadFailed, ev)
		return err
	}

	r.current.Store(engine)
	logger.Info(ctx, "engine ready", "version", engine.Version, "agent_mode", cfg.AgentMode, "llm_provider", cfg.LLMProvider)
	ev.Version = engine.Version
	ev.BuiltAt = engine.BuiltAt.UTC().Format(time.RFC3339)
	r.publish(TopicEngineReloaded, ev)
	return nil
}

func (r *Runtime) publish(topic string, ev ReloadEvent) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(ev)
	r.notify(topic, string(payload))
}
