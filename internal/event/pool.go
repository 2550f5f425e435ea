package event

import (
	"sync"

	"github.com/holiman/uint256"

	"amm_go/internal/domain"
)

// swapPool recycles SwapCommand values on the order-flow path.
//
// Usage:
//
//	cmd := AcquireSwapCommand()
//	cmd.AssetIn = ...
//	// ... send to the sequencer, wait for its result ...
//	ReleaseSwapCommand(cmd)
var swapPool = sync.Pool{
	New: func() interface{} {
		return &SwapCommand{AmountIn: new(uint256.Int), MinOut: new(uint256.Int)}
	},
}

// AcquireSwapCommand gets a zeroed SwapCommand from the pool. Its amount
// fields are allocated and zero.
func AcquireSwapCommand() *SwapCommand {
	return swapPool.Get().(*SwapCommand)
}

// ReleaseSwapCommand resets cmd and returns it to the pool. The caller must
// not use cmd afterwards.
func ReleaseSwapCommand(cmd *SwapCommand) {
	if cmd == nil {
		return
	}
	cmd.Seq = 0
	cmd.Ts = 0
	cmd.AssetIn = domain.AssetID{}
	cmd.AssetOut = domain.AssetID{}
	cmd.Trader = domain.Account{}
	if cmd.AmountIn == nil {
		cmd.AmountIn = new(uint256.Int)
	}
	if cmd.MinOut == nil {
		cmd.MinOut = new(uint256.Int)
	}
	cmd.AmountIn.Clear()
	cmd.MinOut.Clear()

	swapPool.Put(cmd)
}

// Warmup pre-allocates commands to reduce GC pressure at startup.
func Warmup() {
	const batchSize = 1000

	cmds := make([]*SwapCommand, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		cmds = append(cmds, AcquireSwapCommand())
	}
	for _, cmd := range cmds {
		ReleaseSwapCommand(cmd)
	}
}
