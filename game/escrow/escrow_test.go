package escrow

import (
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/dispute-engine/clock"
	"github.com/mantlenetworkio/dispute-engine/testlog"
	"github.com/mantlenetworkio/dispute-engine/world"
)

const testDelay = 7 * 24 * time.Hour

var (
	guardian  = common.Address{0x99}
	owner     = common.Address{0x01}
	vaultAddr = common.Address{0x02}
	game      = common.Address{0x03}
	recipient = common.Address{0x04}
)

func setupEscrow(t *testing.T) (*Escrow, *world.World, *clock.DeterministicClock) {
	clk := clock.NewDeterministicClock(time.Unix(1_700_000_000, 0))
	w := world.NewWorld(testlog.Logger(t, slog.LevelDebug), clk, guardian)
	e := New(testlog.Logger(t, slog.LevelDebug), w, vaultAddr, owner, testDelay)
	w.Mint(game, big.NewInt(1000))
	return e, w, clk
}

func TestDeposit(t *testing.T) {
	e, w, _ := setupEscrow(t)
	require.NoError(t, e.Deposit(game, big.NewInt(300)))
	require.Zero(t, e.BalanceOf(game).Cmp(big.NewInt(300)))
	require.Zero(t, w.BalanceOf(vaultAddr).Cmp(big.NewInt(300)))
	require.Zero(t, w.BalanceOf(game).Cmp(big.NewInt(700)))

	// Deposits exceeding the caller's ledger balance fail atomically.
	require.ErrorIs(t, e.Deposit(game, big.NewInt(10_000)), world.ErrInsufficientBalance)
	require.Zero(t, e.BalanceOf(game).Cmp(big.NewInt(300)))
}

func TestWithdrawRequiresUnlock(t *testing.T) {
	e, _, _ := setupEscrow(t)
	require.NoError(t, e.Deposit(game, big.NewInt(300)))
	require.ErrorIs(t, e.WithdrawTo(game, recipient, big.NewInt(100)), ErrNotUnlocked)
}

func TestWithdrawRequiresDelay(t *testing.T) {
	e, w, clk := setupEscrow(t)
	require.NoError(t, e.Deposit(game, big.NewInt(300)))
	require.NoError(t, e.Unlock(game, recipient, big.NewInt(100)))

	require.ErrorIs(t, e.WithdrawTo(game, recipient, big.NewInt(100)), ErrDelayNotMet)

	clk.AdvanceTime(testDelay - time.Second)
	require.ErrorIs(t, e.WithdrawTo(game, recipient, big.NewInt(100)), ErrDelayNotMet)

	clk.AdvanceTime(time.Second)
	require.NoError(t, e.WithdrawTo(game, recipient, big.NewInt(100)))
	require.Zero(t, w.BalanceOf(recipient).Cmp(big.NewInt(100)))
	require.Zero(t, e.BalanceOf(game).Cmp(big.NewInt(200)))
}

func TestUnlockAccumulatesAndResetsDelay(t *testing.T) {
	e, _, clk := setupEscrow(t)
	require.NoError(t, e.Deposit(game, big.NewInt(300)))
	require.NoError(t, e.Unlock(game, recipient, big.NewInt(100)))

	clk.AdvanceTime(testDelay)
	// A second unlock restarts the delay for the whole accumulated amount.
	require.NoError(t, e.Unlock(game, recipient, big.NewInt(50)))
	require.ErrorIs(t, e.WithdrawTo(game, recipient, big.NewInt(100)), ErrDelayNotMet)

	clk.AdvanceTime(testDelay)
	require.NoError(t, e.WithdrawTo(game, recipient, big.NewInt(150)))
}

func TestWithdrawBounds(t *testing.T) {
	e, _, clk := setupEscrow(t)
	require.NoError(t, e.Deposit(game, big.NewInt(300)))
	require.NoError(t, e.Unlock(game, recipient, big.NewInt(100)))
	clk.AdvanceTime(testDelay)

	require.ErrorIs(t, e.WithdrawTo(game, recipient, big.NewInt(101)), ErrInsufficientUnlocked)

	// Unlocking more than the deposited balance is allowed, withdrawing it
	// is not.
	require.NoError(t, e.Unlock(game, recipient, big.NewInt(500)))
	clk.AdvanceTime(testDelay)
	require.ErrorIs(t, e.WithdrawTo(game, recipient, big.NewInt(400)), ErrInsufficientBalance)
}

func TestWithdrawSelf(t *testing.T) {
	e, w, clk := setupEscrow(t)
	require.NoError(t, e.Deposit(game, big.NewInt(300)))
	require.NoError(t, e.Unlock(game, game, big.NewInt(100)))
	clk.AdvanceTime(testDelay)

	// The single-argument form pays the caller's own account.
	require.NoError(t, e.Withdraw(game, big.NewInt(100)))
	require.Zero(t, w.BalanceOf(game).Cmp(big.NewInt(800)))
	require.Zero(t, e.BalanceOf(game).Cmp(big.NewInt(200)))
}

func TestRecover(t *testing.T) {
	e, w, _ := setupEscrow(t)
	require.NoError(t, e.Deposit(game, big.NewInt(300)))

	// Value force-sent to the vault bypasses the balance tracking.
	w.Mint(vaultAddr, big.NewInt(55))

	require.ErrorIs(t, e.Recover(game, big.NewInt(55)), ErrNotOwner)

	// Recovery is capped at the untracked balance; deposits stay put.
	require.NoError(t, e.Recover(owner, big.NewInt(1000)))
	require.Zero(t, w.BalanceOf(owner).Cmp(big.NewInt(55)))
	require.Zero(t, w.BalanceOf(vaultAddr).Cmp(big.NewInt(300)))
}

func TestPausedEscrow(t *testing.T) {
	e, w, clk := setupEscrow(t)
	require.NoError(t, e.Deposit(game, big.NewInt(300)))
	require.NoError(t, e.Unlock(game, recipient, big.NewInt(100)))
	clk.AdvanceTime(testDelay)

	require.NoError(t, w.Pause(guardian, world.PauseEscrow))
	require.ErrorIs(t, e.Deposit(game, big.NewInt(1)), ErrPaused)
	require.ErrorIs(t, e.Unlock(game, recipient, big.NewInt(1)), ErrPaused)
	require.ErrorIs(t, e.WithdrawTo(game, recipient, big.NewInt(100)), ErrPaused)

	require.NoError(t, w.Unpause(guardian, world.PauseEscrow))
	require.NoError(t, e.WithdrawTo(game, recipient, big.NewInt(100)))
}
