package custody

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"amm_go/internal/domain"
)

var (
	vault = common.HexToAddress("0xfee")
	alice = common.HexToAddress("0xa11ce")
	usdt  = common.HexToAddress("0x1001")
)

func TestBank_TransferInOut(t *testing.T) {
	bank := NewBank(vault)
	ctx := context.Background()

	// Setup: deposit 10000 USDT
	if err := bank.Deposit(alice, usdt, uint256.NewInt(10_000)); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if err := bank.TransferIn(ctx, usdt, alice, uint256.NewInt(4_000)); err != nil {
		t.Fatalf("TransferIn failed: %v", err)
	}
	if got := bank.BalanceOf(alice, usdt).Uint64(); got != 6_000 {
		t.Errorf("Expected 6000 left, got %d", got)
	}
	if got := bank.Custody(usdt).Uint64(); got != 4_000 {
		t.Errorf("Expected 4000 in custody, got %d", got)
	}

	if err := bank.TransferOut(ctx, usdt, alice, uint256.NewInt(1_000)); err != nil {
		t.Fatalf("TransferOut failed: %v", err)
	}
	if got := bank.Custody(usdt).Uint64(); got != 3_000 {
		t.Errorf("Expected 3000 in custody, got %d", got)
	}
}

func TestBank_InsufficientBalance(t *testing.T) {
	bank := NewBank(vault)
	bank.Deposit(alice, usdt, uint256.NewInt(100))

	err := bank.TransferIn(context.Background(), usdt, alice, uint256.NewInt(101))
	if !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("Expected ErrTransferFailed, got %v", err)
	}
	if got := bank.BalanceOf(alice, usdt).Uint64(); got != 100 {
		t.Errorf("failed transfer moved funds: balance %d", got)
	}

	if err := bank.TransferOut(context.Background(), usdt, alice, uint256.NewInt(1)); err == nil {
		t.Error("Expected error paying out of empty custody")
	}
}

func TestBank_Snapshot(t *testing.T) {
	bank := NewBank(vault)
	bank.Deposit(alice, usdt, uint256.NewInt(5))
	bank.TransferIn(context.Background(), usdt, alice, uint256.NewInt(5))

	snap := bank.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("Expected 1 non-zero row, got %d", len(snap))
	}
	if snap[0].Account != vault {
		t.Errorf("Expected vault row, got %s", snap[0].Account.Hex())
	}
}

func TestBank_ImplementsInterface(t *testing.T) {
	var _ domain.TransferService = (*Bank)(nil)
}

func TestBank_VaultIsNotACounterparty(t *testing.T) {
	bank := NewBank(vault)
	ctx := context.Background()

	if err := bank.Deposit(vault, usdt, uint256.NewInt(500)); !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("Expected ErrTransferFailed funding the vault, got %v", err)
	}

	bank.Deposit(alice, usdt, uint256.NewInt(500))
	if err := bank.TransferIn(ctx, usdt, alice, uint256.NewInt(500)); err != nil {
		t.Fatalf("TransferIn failed: %v", err)
	}

	if err := bank.TransferIn(ctx, usdt, vault, uint256.NewInt(100)); !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("Expected ErrTransferFailed for vault TransferIn, got %v", err)
	}
	if err := bank.TransferOut(ctx, usdt, vault, uint256.NewInt(100)); !errors.Is(err, domain.ErrTransferFailed) {
		t.Fatalf("Expected ErrTransferFailed for vault TransferOut, got %v", err)
	}
	if got := bank.Custody(usdt).Uint64(); got != 500 {
		t.Errorf("Expected custody to stay at 500, got %d", got)
	}
}
