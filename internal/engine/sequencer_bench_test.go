package engine

import (
	"context"
	"testing"

	"amm_go/internal/event"
)

func benchSequencer(b *testing.B, inboxSize int) *Sequencer {
	b.Helper()
	f := newFixture(b)
	f.seed(b, 1_000_000_000, 1_000_000_000)
	if err := f.bank.Deposit(bob, assetX, u(1000*(uint64(b.N)+1))); err != nil {
		b.Fatal(err)
	}
	return NewSequencer(inboxSize, f.engine, nil, nil, WithFunder(f.bank))
}

// BenchmarkSequencer_ProcessSwap measures hot-path swap processing speed.
func BenchmarkSequencer_ProcessSwap(b *testing.B) {
	seq := benchSequencer(b, 1000)
	ctx := context.Background()

	// Pre-create command to avoid allocation in loop
	cmd := event.AcquireSwapCommand()
	cmd.AssetIn = assetX
	cmd.AssetOut = assetY
	cmd.AmountIn.SetUint64(1000)
	cmd.Trader = bob

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		cmd.Seq = uint64(i + 1)
		seq.nextSeq = uint64(i + 1) // Align sequence to avoid gap panic

		seq.apply(ctx, cmd)
	}

	event.ReleaseSwapCommand(cmd)
}

// BenchmarkSequencer_FullPipeline measures end-to-end command processing.
// Note: This benchmark includes channel overhead.
func BenchmarkSequencer_FullPipeline(b *testing.B) {
	seq := benchSequencer(b, b.N+100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start sequencer in background
	go seq.Run(ctx)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		cmd := &event.SwapCommand{AssetIn: assetX, AssetOut: assetY, AmountIn: u(1000), Trader: bob}
		if _, err := seq.Submit(ctx, cmd); err != nil {
			b.Fatal(err)
		}
	}

	cancel()
}
