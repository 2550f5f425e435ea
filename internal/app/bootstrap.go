package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"amm_go/internal/custody"
	"amm_go/internal/engine"
	"amm_go/internal/event"
	"amm_go/internal/infra"
	"amm_go/internal/infra/api"
	"amm_go/internal/infra/storage"
	"amm_go/internal/infra/stream"
	"amm_go/internal/registry"
)

// CustodyAccount holds pooled assets on the paper custody ledger.
var CustodyAccount = common.HexToAddress("0x000000000000000000000000000000000000a77d")

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Logger    *slog.Logger
	Storage   *storage.Storage
	Bank      *custody.Bank
	Engine    *engine.Engine
	Sequencer *engine.Sequencer
	Hub       *stream.Hub
	Server    *api.Server
	Metrics   *infra.Metrics
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(cfg *infra.Config) *Bootstrap {
	return &Bootstrap{Config: cfg, Metrics: infra.GlobalMetrics}
}

// Initialize performs core system initialization: logger, database, WAL
// recovery and the wiring of engine, sequencer and API.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	cfg := b.Config

	// 1. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	slog.Info("🚀 Bootstrapping AMM engine...", slog.String("version", cfg.App.Version))

	// 2. Initialize Storage (DB)
	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("✅ Database initialized")

	event.Warmup()

	// 3. Rebuild state from the WAL
	rec, err := b.recover(ctx)
	if err == nil {
		// 4. Wire the live engine
		err = b.wire(ctx, rec)
	}
	if err != nil {
		store.Close()
		return err
	}
	return nil
}

func (b *Bootstrap) recover(ctx context.Context) (*Recovered, error) {
	cmds, err := b.Storage.LoadCommands(ctx)
	if err != nil {
		return nil, err
	}
	b.Bank = custody.NewBank(CustodyAccount)
	rec, err := Recover(ctx, cmds, b.Bank, b.Config.Engine.Fee)
	if err != nil {
		return nil, err
	}

	pools, shares, err := b.Storage.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range Drift(rec, pools, shares) {
		slog.Warn("State drift", slog.String("detail", d))
	}
	if err := b.Storage.SaveState(ctx, rec.Pools, rec.Snapshot(shares)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (b *Bootstrap) wire(ctx context.Context, rec *Recovered) error {
	var err error
	b.Hub = stream.NewHub(b.Logger, b.Metrics)
	sinks := infra.MultiSink{b.Storage, b.Metrics, infra.LogSink{Logger: b.Logger}, b.Hub}

	reg := registry.New(
		registry.WithPersister(b.Storage),
		registry.WithEventSink(sinks),
		registry.WithLogger(b.Logger),
	)
	b.Engine, err = engine.New(reg, b.Bank,
		engine.WithFee(b.Config.Engine.Fee),
		engine.WithEventSink(sinks),
		engine.WithLogger(b.Logger),
	)
	if err != nil {
		return err
	}
	if err := b.Engine.Restore(ctx, rec.Pools, rec.Shares); err != nil {
		return err
	}

	b.Sequencer = engine.NewSequencer(b.Config.Engine.InboxSize, b.Engine, b.Storage, b.onResult,
		engine.WithFunder(b.Bank),
		engine.WithRecorder(b.Metrics),
		engine.WithDumpPath(b.Config.Engine.DumpPath),
		engine.WithNextSeq(rec.NextSeq),
	)
	slog.Info("✅ State recovered", slog.Int("pools", len(rec.Pools)), slog.Uint64("next_seq", rec.NextSeq))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		infra.NewCollector(b.Metrics, b.Engine),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b.Server = api.NewServer(
		api.Config{
			ListenAddr:      b.Config.Server.Addr,
			ShutdownTimeout: time.Duration(b.Config.Server.ShutdownTimeout) * time.Second,
			EnableCORS:      b.Config.Server.EnableCORS,
		},
		b.Engine, b.Sequencer,
		api.WithJournal(b.Storage),
		api.WithStream(http.HandlerFunc(b.Hub.ServeWS)),
		api.WithGatherer(promReg),
		api.WithLogger(b.Logger),
	)
	return nil
}

// onResult runs on the sequencer goroutine after every command.
func (b *Bootstrap) onResult(res event.Result) {
	if res.Err != nil || !b.Config.Engine.VerifyInvariants {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := b.Engine.CheckInvariants(ctx); err != nil {
		slog.Error("INVARIANT_VIOLATION", slog.Uint64("seq", res.Seq), slog.Any("error", err))
	}
}

// Run starts the hub, the sequencer and the API, then blocks until ctx ends.
func (b *Bootstrap) Run(ctx context.Context) error {
	if b.Sequencer == nil {
		return errNotInitialized
	}
	go b.Hub.Run()
	go b.Sequencer.Run(ctx)
	slog.InfoContext(ctx, "✅ Sequencer (Hotpath) started")

	b.Server.Start()
	slog.InfoContext(ctx, "✨ AMM engine fully operational. Press Ctrl+C to exit.")

	<-ctx.Done()
	slog.Info("👋 Shutting down gracefully...")

	err := b.Server.Stop()
	b.Hub.Stop()
	return err
}

// Close releases the database.
func (b *Bootstrap) Close() error {
	if b.Storage == nil {
		return nil
	}
	return b.Storage.Close()
}

// errNotInitialized guards Run before Initialize.
var errNotInitialized = errors.New("bootstrap: Initialize has not run")
