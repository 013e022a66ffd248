// Package world models the serialized ledger the dispute engine runs on: an
// ETH balance sheet, a monotonic time source, an append-only event log and
// a guardian-controlled pause switch. All engine state transitions are
// atomic with respect to a single World; concurrency between callers is the
// caller's transaction ordering, not goroutines.
package world

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/dispute-engine/clock"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrNotGuardian         = errors.New("caller is not the guardian")
)

// PauseIdentifier names an independently pausable subsystem.
type PauseIdentifier string

const (
	PauseSuperchain PauseIdentifier = "superchain"
	PauseEscrow     PauseIdentifier = "escrow"
)

type World struct {
	log      log.Logger
	clk      clock.Clock
	guardian common.Address

	balances map[common.Address]*big.Int
	paused   map[PauseIdentifier]bool
	events   []Event
}

func NewWorld(logger log.Logger, clk clock.Clock, guardian common.Address) *World {
	return &World{
		log:      logger,
		clk:      clk,
		guardian: guardian,
		balances: make(map[common.Address]*big.Int),
		paused:   make(map[PauseIdentifier]bool),
	}
}

// Now returns the ledger's current time.
func (w *World) Now() time.Time {
	return w.clk.Now()
}

// Timestamp returns the ledger's current time as unix seconds.
func (w *World) Timestamp() uint64 {
	return uint64(w.clk.Now().Unix())
}

func (w *World) Guardian() common.Address {
	return w.guardian
}

// BalanceOf returns a copy of the account's balance.
func (w *World) BalanceOf(addr common.Address) *big.Int {
	if bal, ok := w.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Mint credits an account out of thin air. Test and genesis funding only.
func (w *World) Mint(addr common.Address, amount *big.Int) {
	w.balances[addr] = new(big.Int).Add(w.BalanceOf(addr), amount)
}

// Transfer moves value between accounts, failing if the sender's balance is
// insufficient. The transfer is atomic.
func (w *World) Transfer(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	fromBal := w.BalanceOf(from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %v has %v, needs %v", ErrInsufficientBalance, from, fromBal, amount)
	}
	w.balances[from] = fromBal.Sub(fromBal, amount)
	w.balances[to] = new(big.Int).Add(w.BalanceOf(to), amount)
	return nil
}

// EmitEvent appends an event to the audit log.
func (w *World) EmitEvent(ev Event) {
	w.events = append(w.events, ev)
	w.log.Debug("Event emitted", "event", ev.EventName())
}

// Events returns the full audit log, oldest first.
func (w *World) Events() []Event {
	return w.events
}

// Paused reports whether the identified subsystem is paused.
func (w *World) Paused(id PauseIdentifier) bool {
	return w.paused[id]
}

// Pause halts the identified subsystem. Guardian only.
func (w *World) Pause(caller common.Address, id PauseIdentifier) error {
	if caller != w.guardian {
		return ErrNotGuardian
	}
	w.paused[id] = true
	w.log.Warn("Subsystem paused", "identifier", id)
	return nil
}

// Unpause resumes the identified subsystem. Guardian only.
func (w *World) Unpause(caller common.Address, id PauseIdentifier) error {
	if caller != w.guardian {
		return ErrNotGuardian
	}
	w.paused[id] = false
	w.log.Info("Subsystem unpaused", "identifier", id)
	return nil
}
