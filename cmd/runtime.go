package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/aictl/itaccess/internal/agent"
	"github.com/aictl/itaccess/internal/config"
	"github.com/aictl/itaccess/internal/gate"
	"github.com/aictl/itaccess/internal/logging"
	"github.com/aictl/itaccess/internal/metrics"
	"github.com/aictl/itaccess/internal/permission"
	"github.com/aictl/itaccess/internal/provider"
	"github.com/aictl/itaccess/internal/store"
	"github.com/aictl/itaccess/internal/toolkit"
	"github.com/aictl/itaccess/internal/tools"
	"github.com/aictl/itaccess/internal/tui"
)

// runtime is everything one conversation owns: its store, the tools bound
// to it, the executor and the gate.
type runtime struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	store    store.Store
	toolkit  *toolkit.Toolkit
	executor *tools.Executor
	gate     *gate.Gate
}

func buildRuntime(cfg *config.Config) (*runtime, error) {
	log, err := logging.New(logging.Options{
		Level:    cfg.Log.Level,
		Encoding: cfg.Log.Encoding,
		File:     cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}

	snap := store.SampleSnapshot()
	if cfg.Store.Snapshot != "" {
		if snap, err = store.LoadSnapshot(cfg.Store.Snapshot); err != nil {
			return nil, err
		}
	}
	s, err := store.Open(cfg.Store.Backend, snap, store.NewIDPool(cfg.Store.PermissionIDs))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := metrics.New()
	tk := toolkit.New(s, toolkit.FixedClock(cfg.Clock.GrantDate))
	registry := tools.AccessRegistry(tk)
	executor := tools.NewExecutor(registry, permission.NewDefaultPolicy(&cfg.Permissions), log, m)

	rt := &runtime{cfg: cfg, log: log, metrics: m, store: s, toolkit: tk, executor: executor}
	if cfg.Gate.Enabled {
		rt.gate, err = gate.New(registry,
			gate.WithLogger(log),
			gate.WithMetrics(m),
			gate.WithVerifyTool(cfg.Gate.VerifyTool),
		)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
	}

	log.Debug("runtime ready",
		zap.String("backend", cfg.Store.Backend),
		zap.String("mode", cfg.Permissions.Mode),
		zap.Bool("gate", cfg.Gate.Enabled),
		zap.Int("users", len(snap.Users)),
	)
	return rt, nil
}

func (rt *runtime) newAgent(p provider.Provider, ui tui.IO) *agent.Agent {
	return agent.New(p, rt.executor, rt.cfg, ui, agent.Options{
		Gate:    rt.gate,
		Store:   rt.store,
		Logger:  rt.log,
		Metrics: rt.metrics,
	})
}

// serveMetrics exposes /metrics in the background when an address is set.
func (rt *runtime) serveMetrics(ctx context.Context) {
	addr := rt.cfg.Metrics.Addr
	if addr == "" {
		return
	}
	go func() {
		if err := rt.metrics.Serve(ctx, addr, rt.log); err != nil {
			rt.log.Error("metrics endpoint failed", zap.Error(err))
		}
	}()
}

func (rt *runtime) Close() {
	if err := rt.store.Close(); err != nil {
		rt.log.Warn("closing store", zap.Error(err))
	}
	_ = rt.log.Sync()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
