package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"amm_go/internal/custody"
	"amm_go/internal/domain"
	"amm_go/internal/event"
	"amm_go/internal/infra"
	"amm_go/internal/pricing"
)

var (
	assetX = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetY = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	alice  = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

// wal returns a numbered command log ending in one rejected swap.
func wal() []event.Command {
	cmds := []event.Command{
		&event.DepositCommand{Account: alice, Asset: assetX, Amount: u(1000)},
		&event.DepositCommand{Account: alice, Asset: assetY, Amount: u(4000)},
		&event.DepositCommand{Account: bob, Asset: assetX, Amount: u(100)},
		&event.CreatePoolCommand{AssetA: assetX, AssetB: assetY},
		&event.AddLiquidityCommand{AssetA: assetX, AssetB: assetY, AmountA: u(1000), AmountB: u(4000), Provider: alice},
		&event.SwapCommand{AssetIn: assetX, AssetOut: assetY, AmountIn: u(100), MinOut: u(0), Trader: bob},
		&event.SwapCommand{AssetIn: assetX, AssetOut: assetY, AmountIn: u(100), MinOut: u(0), Trader: bob}, // bob is out of X
	}
	for i, c := range cmds {
		c.SetSeq(uint64(i + 1))
	}
	return cmds
}

func TestRecover(t *testing.T) {
	bank := custody.NewBank(CustodyAccount)
	rec, err := Recover(context.Background(), wal(), bank, pricing.DefaultFee)
	require.NoError(t, err)

	require.EqualValues(t, 8, rec.NextSeq)
	require.Equal(t, 1, rec.Rejected)
	require.Len(t, rec.Pools, 1)
	p := rec.Pools[0]
	require.EqualValues(t, 1100, p.ReserveA.Uint64())
	require.EqualValues(t, 3638, p.ReserveB.Uint64())
	require.Len(t, rec.Shares, 1)
	require.EqualValues(t, 2000, rec.Shares[0].Balance.Uint64())

	// Custody balances are rebuilt alongside.
	require.EqualValues(t, 362, bank.BalanceOf(bob, assetY).Uint64())
	require.EqualValues(t, 1100, bank.Custody(assetX).Uint64())
}

func TestDrift(t *testing.T) {
	rec, err := Recover(context.Background(), wal(), custody.NewBank(CustodyAccount), pricing.DefaultFee)
	require.NoError(t, err)

	require.Empty(t, Drift(rec, rec.Pools, rec.Shares))

	stale := rec.Pools[0]
	stale.ReserveA.SetUint64(1000)
	ghost := domain.ShareBalance{Pool: stale.ID, Account: bob, Balance: *u(5)}
	diffs := Drift(rec, []domain.Pool{stale}, append([]domain.ShareBalance{ghost}, rec.Shares...))
	require.Len(t, diffs, 2)

	require.Len(t, Drift(rec, nil, nil), 2) // missing pool and missing shares
}

func TestRecoveredSnapshotClearsStaleHolders(t *testing.T) {
	rec, err := Recover(context.Background(), wal(), custody.NewBank(CustodyAccount), pricing.DefaultFee)
	require.NoError(t, err)

	ghost := domain.ShareBalance{Pool: rec.Pools[0].ID, Account: bob, Balance: *u(5)}
	rows := rec.Snapshot([]domain.ShareBalance{ghost})
	require.Len(t, rows, 2)
	require.Equal(t, bob, rows[1].Account)
	require.True(t, rows[1].Balance.IsZero())
}

func testConfig(t *testing.T) *infra.Config {
	dir := t.TempDir()
	cfg := infra.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "amm.db")
	cfg.Logging.Dir = filepath.Join(dir, "logs")
	cfg.Logging.Level = "error"
	cfg.Engine.DumpPath = filepath.Join(dir, "dump.json")
	return cfg
}

func TestBootstrap_RestartRestoresState(t *testing.T) {
	cfg := testConfig(t)

	first := NewBootstrap(cfg)
	require.NoError(t, first.Initialize(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	go first.Sequencer.Run(ctx)

	for _, cmd := range wal() {
		cmd.SetSeq(0)
		_, err := first.Sequencer.Execute(ctx, cmd)
		require.NoError(t, err)
	}
	cancel()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, first.Close())

	second := NewBootstrap(cfg)
	require.NoError(t, second.Initialize(context.Background()))
	defer second.Close()

	require.EqualValues(t, 8, second.Sequencer.NextSeq())
	pools, err := second.Engine.Pools(context.Background())
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.EqualValues(t, 1100, pools[0].ReserveA.Uint64())
	require.EqualValues(t, 362, second.Bank.BalanceOf(bob, assetY).Uint64())

	stored, shares, err := second.Storage.LoadState(context.Background())
	require.NoError(t, err)
	require.Empty(t, Drift(&Recovered{Pools: pools, Shares: shares}, stored, shares))
	require.NoError(t, second.Engine.CheckInvariants(context.Background()))
}

func TestBootstrap_RunRequiresInitialize(t *testing.T) {
	require.ErrorIs(t, NewBootstrap(testConfig(t)).Run(context.Background()), errNotInitialized)
}
