package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"amm_go/internal/domain"
	"amm_go/internal/event"
)

// CommandStore is the write-ahead log of accepted commands.
type CommandStore interface {
	SaveCommand(ctx context.Context, cmd event.Command) error
}

// Funder credits paper balances for DepositCommand.
type Funder interface {
	Deposit(account domain.Account, asset domain.AssetID, amount *uint256.Int) error
}

// Recorder receives per-command latency and failures.
type Recorder interface {
	RecordEvent(latencyNs int64)
	RecordError()
}

// ErrNoFunder is returned for deposits when no custody ledger is configured.
var ErrNoFunder = errors.New("sequencer: deposits are not supported without a custody ledger")

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithFunder enables DepositCommand.
func WithFunder(f Funder) SequencerOption {
	return func(s *Sequencer) { s.funder = f }
}

// WithRecorder reports command metrics.
func WithRecorder(r Recorder) SequencerOption {
	return func(s *Sequencer) { s.recorder = r }
}

// WithDumpPath sets where the state dump is written on panic.
func WithDumpPath(path string) SequencerOption {
	return func(s *Sequencer) { s.dumpPath = path }
}

// WithNextSeq resumes numbering after a replayed WAL. n is the first
// sequence number the sequencer will accept.
func WithNextSeq(n uint64) SequencerOption {
	return func(s *Sequencer) {
		if n == 0 {
			n = 1
		}
		s.nextSeq = n
		s.assigned = n - 1
	}
}

// Sequencer is the single-threaded command processor in front of the engine.
// Commands are applied strictly in sequence order; a gap halts the process.
type Sequencer struct {
	inbox    chan event.Command
	engine   *Engine
	nextSeq  uint64
	store    CommandStore
	funder   Funder
	recorder Recorder
	dumpPath string

	// Boundary: used to notify API clients or other systems of outcomes
	onResult func(event.Result)

	// intake: sequence assignment and result waiters
	submitMu sync.Mutex
	assigned uint64
	waitMu   sync.Mutex
	waiters  map[uint64]chan event.Result
}

// NewSequencer creates a sequencer over eng. store may be nil (no WAL).
func NewSequencer(inboxSize int, eng *Engine, store CommandStore, onResult func(event.Result), opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		inbox:    make(chan event.Command, inboxSize),
		engine:   eng,
		nextSeq:  1,
		store:    store,
		dumpPath: "panic_dump.json",
		onResult: onResult,
		waiters:  make(map[uint64]chan event.Result),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inbox returns the command channel. Producers that assign their own sequence
// numbers send here; everyone else uses Submit or Execute.
func (s *Sequencer) Inbox() chan<- event.Command {
	return s.inbox
}

// Submit assigns the next sequence number to cmd and enqueues it.
func (s *Sequencer) Submit(ctx context.Context, cmd event.Command) (uint64, error) {
	seq, _, err := s.enqueue(ctx, cmd, false)
	return seq, err
}

// Execute submits cmd and waits for its result.
func (s *Sequencer) Execute(ctx context.Context, cmd event.Command) (event.Result, error) {
	seq, wait, err := s.enqueue(ctx, cmd, true)
	if err != nil {
		return event.Result{}, err
	}
	select {
	case res := <-wait:
		return res, nil
	case <-ctx.Done():
		s.waitMu.Lock()
		delete(s.waiters, seq)
		s.waitMu.Unlock()
		return event.Result{}, ctx.Err()
	}
}

func (s *Sequencer) enqueue(ctx context.Context, cmd event.Command, await bool) (uint64, chan event.Result, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	seq := s.assigned + 1
	cmd.SetSeq(seq)

	var wait chan event.Result
	if await {
		wait = make(chan event.Result, 1)
		s.waitMu.Lock()
		s.waiters[seq] = wait
		s.waitMu.Unlock()
	}

	select {
	case s.inbox <- cmd:
		s.assigned = seq
		return seq, wait, nil
	case <-ctx.Done():
		if await {
			s.waitMu.Lock()
			delete(s.waiters, seq)
			s.waitMu.Unlock()
		}
		return 0, nil, ctx.Err()
	}
}

// Run starts the main command loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started", slog.Uint64("next_seq", s.nextSeq))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState(s.dumpPath)
			// Halt after dump.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case cmd := <-s.inbox:
			s.processCommand(ctx, cmd)
		}
	}
}

func (s *Sequencer) processCommand(ctx context.Context, cmd event.Command) {
	start := time.Now()
	// A dequeued command always runs to completion, even during shutdown.
	ctx = context.WithoutCancel(ctx)

	// 1. Sequence gap check (halt policy)
	if cmd.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, cmd.GetSeq()))
	}

	// 2. WAL-first
	if s.store != nil {
		if err := s.store.SaveCommand(ctx, cmd); err != nil {
			panic(fmt.Sprintf("PERSISTENCE_FAILURE: %v", err))
		}
	}

	// 3. Dispatch
	res := s.apply(ctx, cmd)

	// 4. Advance
	s.nextSeq++

	if s.recorder != nil {
		s.recorder.RecordEvent(time.Since(start).Nanoseconds())
		if res.Err != nil {
			s.recorder.RecordError()
		}
	}
	if res.Err != nil {
		slog.Warn("Command rejected",
			slog.Uint64("seq", res.Seq),
			slog.String("type", string(res.Type)),
			slog.String("kind", res.Kind()),
			slog.Any("error", res.Err))
	}
	s.deliver(res)
}

// ReplayEvent applies a command synchronously without WAL logging.
// This is used exclusively by the replayer.
func (s *Sequencer) ReplayEvent(ctx context.Context, cmd event.Command) event.Result {
	// Replay must still respect sequence order
	if cmd.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("REPLAY_GAP_DETECTED: expected %d, got %d", s.nextSeq, cmd.GetSeq()))
	}

	res := s.apply(ctx, cmd)
	s.nextSeq++

	s.submitMu.Lock()
	s.assigned = cmd.GetSeq()
	s.submitMu.Unlock()
	return res
}

// NextSeq returns the sequence number the sequencer expects next.
// Only meaningful from the sequencer goroutine or before Run.
func (s *Sequencer) NextSeq() uint64 {
	return s.nextSeq
}

func (s *Sequencer) apply(ctx context.Context, cmd event.Command) event.Result {
	res := event.Result{Seq: cmd.GetSeq(), Type: cmd.GetType()}

	switch c := cmd.(type) {
	case *event.DepositCommand:
		if s.funder == nil {
			res.Err = ErrNoFunder
			break
		}
		res.Err = s.funder.Deposit(c.Account, c.Asset, orZero(c.Amount))
	case *event.CreatePoolCommand:
		res.Pool, res.Err = s.engine.CreatePool(ctx, c.AssetA, c.AssetB)
	case *event.AddLiquidityCommand:
		res.Pool = domain.PairIdentifier(c.AssetA, c.AssetB)
		issued, err := s.engine.AddLiquidity(ctx, c.AssetA, c.AssetB, orZero(c.AmountA), orZero(c.AmountB), c.Provider)
		res.Err = err
		if err == nil {
			res.Amounts = []*uint256.Int{issued}
		}
	case *event.RemoveLiquidityCommand:
		res.Pool = domain.PairIdentifier(c.AssetA, c.AssetB)
		a, b, err := s.engine.RemoveLiquidity(ctx, c.AssetA, c.AssetB, orZero(c.Shares), c.Provider)
		res.Err = err
		if err == nil {
			res.Amounts = []*uint256.Int{a, b}
		}
	case *event.SwapCommand:
		res.Pool = domain.PairIdentifier(c.AssetIn, c.AssetOut)
		out, err := s.engine.Swap(ctx, c.AssetIn, c.AssetOut, c.AmountIn, c.MinOut, c.Trader)
		res.Err = err
		if err == nil {
			res.Amounts = []*uint256.Int{out}
		}
	default:
		slog.Warn("Unknown command type", slog.Any("type", cmd.GetType()))
		res.Err = fmt.Errorf("unknown command type %q", cmd.GetType())
	}
	return res
}

func (s *Sequencer) deliver(res event.Result) {
	s.waitMu.Lock()
	wait, ok := s.waiters[res.Seq]
	delete(s.waiters, res.Seq)
	s.waitMu.Unlock()

	if ok {
		wait <- res
	}
	if s.onResult != nil {
		s.onResult(res)
	}
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

// stateDump is the post-mortem snapshot written by DumpState.
type stateDump struct {
	NextSeq uint64            `json:"next_seq"`
	Pools   []domain.PoolView `json:"pools"`
	Shares  []shareView       `json:"shares"`
}

type shareView struct {
	Pool    string `json:"pool_id"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// DumpState writes the engine state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	data := stateDump{NextSeq: s.nextSeq}
	pools, err := s.engine.Pools(ctx)
	if err != nil {
		slog.Error("Failed to collect pools", slog.Any("error", err))
	}
	for i := range pools {
		data.Pools = append(data.Pools, pools[i].View())
		for _, row := range s.engine.shares.Holders(pools[i].ID) {
			data.Shares = append(data.Shares, shareView{
				Pool:    row.Pool.Hex(),
				Account: row.Account.Hex(),
				Balance: row.Balance.Dec(),
			})
		}
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
