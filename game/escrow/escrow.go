// Package escrow holds challenge bonds on behalf of dispute games. Payouts
// follow a two-phase unlock/withdraw flow: a game first marks credit
// withdrawable for a recipient, then the recipient may withdraw once a
// fixed delay has elapsed. The delay is the window in which a guardian can
// intervene on a mis-resolved game before any value leaves the system.
package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/dispute-engine/world"
)

var (
	ErrNotUnlocked          = errors.New("no unlocked funds for recipient")
	ErrDelayNotMet          = errors.New("withdrawal delay has not elapsed")
	ErrInsufficientUnlocked = errors.New("amount exceeds unlocked balance")
	ErrInsufficientBalance  = errors.New("amount exceeds deposited balance")
	ErrNotOwner             = errors.New("caller is not the owner")
	ErrPaused               = errors.New("escrow is paused")
)

// withdrawalRequest accumulates unlocked value for one (owner, recipient)
// pair. Repeated unlocks add to the amount and reset the timestamp.
type withdrawalRequest struct {
	Amount    *big.Int
	Timestamp time.Time
}

type accountPair struct {
	Owner     common.Address
	Recipient common.Address
}

// Escrow is the delayed bond vault. The vault's own ledger account holds
// the pooled ETH; per-owner balances and per-pair withdrawal requests are
// tracked internally.
type Escrow struct {
	log   log.Logger
	world *world.World

	addr  common.Address
	owner common.Address
	delay time.Duration

	balances    map[common.Address]*big.Int
	withdrawals map[accountPair]*withdrawalRequest
}

func New(logger log.Logger, w *world.World, addr, owner common.Address, delay time.Duration) *Escrow {
	return &Escrow{
		log:         logger,
		world:       w,
		addr:        addr,
		owner:       owner,
		delay:       delay,
		balances:    make(map[common.Address]*big.Int),
		withdrawals: make(map[accountPair]*withdrawalRequest),
	}
}

func (e *Escrow) Addr() common.Address {
	return e.addr
}

func (e *Escrow) Delay() time.Duration {
	return e.delay
}

// BalanceOf returns the amount the owner account has deposited and not yet
// withdrawn.
func (e *Escrow) BalanceOf(owner common.Address) *big.Int {
	if bal, ok := e.balances[owner]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Deposit moves value from the caller into the vault, credited to the
// caller's escrow balance.
func (e *Escrow) Deposit(caller common.Address, amount *big.Int) error {
	if err := e.checkPaused(); err != nil {
		return err
	}
	if err := e.world.Transfer(caller, e.addr, amount); err != nil {
		return fmt.Errorf("deposit failed: %w", err)
	}
	e.balances[caller] = new(big.Int).Add(e.BalanceOf(caller), amount)
	return nil
}

// Unlock marks amount of the caller's balance withdrawable by recipient
// once the withdrawal delay elapses. Calling again accumulates the amount
// and restarts the delay for the whole accumulated balance.
func (e *Escrow) Unlock(caller, recipient common.Address, amount *big.Int) error {
	if err := e.checkPaused(); err != nil {
		return err
	}
	pair := accountPair{Owner: caller, Recipient: recipient}
	wd := e.withdrawals[pair]
	if wd == nil {
		wd = &withdrawalRequest{Amount: new(big.Int)}
		e.withdrawals[pair] = wd
	}
	wd.Amount = wd.Amount.Add(wd.Amount, amount)
	wd.Timestamp = e.world.Now()
	e.world.EmitEvent(world.ETHUnlocked{Owner: caller, Recipient: recipient, Amount: new(big.Int).Set(amount)})
	return nil
}

// Withdraw pays out previously unlocked value from the caller's balance to
// the caller itself.
func (e *Escrow) Withdraw(caller common.Address, amount *big.Int) error {
	return e.WithdrawTo(caller, caller, amount)
}

// WithdrawTo pays out previously unlocked value from the caller's balance to
// the recipient. The full withdrawal delay must have elapsed since the last
// unlock for this (caller, recipient) pair.
func (e *Escrow) WithdrawTo(caller, recipient common.Address, amount *big.Int) error {
	if err := e.checkPaused(); err != nil {
		return err
	}
	pair := accountPair{Owner: caller, Recipient: recipient}
	wd := e.withdrawals[pair]
	if wd == nil || wd.Amount.Sign() == 0 {
		return ErrNotUnlocked
	}
	if e.world.Now().Sub(wd.Timestamp) < e.delay {
		return fmt.Errorf("%w: unlocked at %v, delay %v", ErrDelayNotMet, wd.Timestamp.Unix(), e.delay)
	}
	if amount.Cmp(wd.Amount) > 0 {
		return fmt.Errorf("%w: unlocked %v, requested %v", ErrInsufficientUnlocked, wd.Amount, amount)
	}
	bal := e.BalanceOf(caller)
	if amount.Cmp(bal) > 0 {
		return fmt.Errorf("%w: balance %v, requested %v", ErrInsufficientBalance, bal, amount)
	}
	// Account first, then move value.
	wd.Amount = wd.Amount.Sub(wd.Amount, amount)
	e.balances[caller] = bal.Sub(bal, amount)
	if err := e.world.Transfer(e.addr, recipient, amount); err != nil {
		return fmt.Errorf("withdrawal transfer failed: %w", err)
	}
	e.world.EmitEvent(world.ETHWithdrawn{Owner: caller, Recipient: recipient, Amount: new(big.Int).Set(amount)})
	return nil
}

// Recover sweeps ETH held by the vault account that is not tracked by any
// owner balance, e.g. value force-sent to the vault. Owner only, capped at
// the actual untracked balance.
func (e *Escrow) Recover(caller common.Address, amount *big.Int) error {
	if caller != e.owner {
		return ErrNotOwner
	}
	untracked := e.world.BalanceOf(e.addr)
	for _, bal := range e.balances {
		untracked = untracked.Sub(untracked, bal)
	}
	if amount.Cmp(untracked) > 0 {
		amount = untracked
	}
	if amount.Sign() <= 0 {
		return nil
	}
	if err := e.world.Transfer(e.addr, e.owner, amount); err != nil {
		return fmt.Errorf("recover transfer failed: %w", err)
	}
	e.log.Info("Recovered untracked escrow balance", "amount", amount)
	return nil
}

func (e *Escrow) checkPaused() error {
	if e.world.Paused(world.PauseEscrow) {
		return ErrPaused
	}
	return nil
}
