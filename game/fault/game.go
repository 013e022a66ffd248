// Package fault implements the bisection dispute game state machine: a
// claim tree over an asserted output root, chess-clocked attack/defend
// moves, single-instruction steps at the leaves, bottom-up resolution and
// bond accounting through the delayed escrow.
package fault

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/dispute-engine/game/escrow"
	"github.com/mantlenetworkio/dispute-engine/game/types"
	"github.com/mantlenetworkio/dispute-engine/game/vm"
	"github.com/mantlenetworkio/dispute-engine/metrics"
	"github.com/mantlenetworkio/dispute-engine/world"
)

var (
	ErrGameNotInProgress     = errors.New("game is not in progress")
	ErrGameNotResolved       = errors.New("game is not resolved")
	ErrGameNotFinalized      = errors.New("game is not finalized")
	ErrGameAlreadyClosed     = errors.New("game is already closed")
	ErrGameNotClosed         = errors.New("game is not closed")
	ErrParentDoesNotExist    = errors.New("parent claim does not exist")
	ErrInvalidDisputedClaim  = errors.New("disputed claim does not match parent claim")
	ErrCannotDefendRootClaim = errors.New("cannot defend the root claim")
	ErrClaimAlreadyExists    = errors.New("claim already exists at this position")
	ErrClockTimeExceeded     = errors.New("chess clock time exceeded")
	ErrIncorrectBondAmount   = errors.New("incorrect bond amount")
	ErrUnexpectedRootClaim   = errors.New("unexpected execution sub-game root claim status")
	ErrInvalidStepPosition   = errors.New("step may only target max depth claims")
	ErrInvalidPrestate       = errors.New("state witness does not match pre-state claim")
	ErrValidStep             = errors.New("cannot step against a valid claim transition")
	ErrDuplicateStep         = errors.New("claim has already been countered")
	ErrClaimAlreadyResolved  = errors.New("claim has already been resolved")
	ErrClockNotExpired       = errors.New("chess clock has not expired")
	ErrOutOfOrderResolution  = errors.New("children must be resolved before the parent")
	ErrNoCreditToClaim       = errors.New("no credit to claim")
	ErrClaimNotFound         = errors.New("no claim found at position")
)

// AnchorStateRegistry is the slice of the registry's surface the game
// consults when closing: the finality/propriety predicates and the anchor
// update hook.
type AnchorStateRegistry interface {
	IsGameFinalized(game types.DisputeGame) bool
	IsGameProper(game types.DisputeGame) bool
	IsGameRespected(game types.DisputeGame) bool
	SetAnchorState(game types.DisputeGame) error
}

// GameParams are the per-game-type rules a factory implementation binds a
// game to at creation. They are immutable for the life of the game.
type GameParams struct {
	GameType         types.GameType
	MaxGameDepth     types.Depth
	SplitDepth       types.Depth
	MaxClockDuration time.Duration
	ClockExtension   time.Duration

	InitBond       *big.Int
	BaseBond       *big.Int
	BondMultiplier uint64

	// AbsolutePrestate is the commitment to the VM state preceding trace
	// index 0 of any execution sub-game.
	AbsolutePrestate common.Hash
	VM               vm.Oracle
}

// FaultDisputeGame is a single dispute over one root claim. All methods
// that mutate state take the caller explicitly; authorization and value
// checks happen before any mutation.
type FaultDisputeGame struct {
	log     log.Logger
	world   *world.World
	weth    *escrow.Escrow
	anchors AnchorStateRegistry
	metrics metrics.Metricer

	index  uint64
	addr   common.Address
	params GameParams

	extraData        []byte
	l2SequenceNumber *big.Int

	createdAt  time.Time
	resolvedAt time.Time
	status     types.GameStatus
	closed     bool

	wasRespectedGameTypeWhenCreated bool

	claims       []types.Claim
	claimedMoves map[types.MovePositionID]bool
	subgames     map[int][]int
	resolved     map[int]bool

	distributionMode types.BondDistributionMode
	normalCredit     map[common.Address]*big.Int
	refundCredit     map[common.Address]*big.Int
	// participants in claim order, for deterministic credit unlocking.
	participants []common.Address
}

var _ types.DisputeGame = (*FaultDisputeGame)(nil)

// NewFaultDisputeGame creates a game and bonds its root claim. The creator
// must attach exactly the init bond. The factory is the only expected
// caller.
func NewFaultDisputeGame(
	logger log.Logger,
	w *world.World,
	weth *escrow.Escrow,
	anchors AnchorStateRegistry,
	m metrics.Metricer,
	index uint64,
	addr common.Address,
	params GameParams,
	creator common.Address,
	bond *big.Int,
	rootClaim common.Hash,
	extraData []byte,
	wasRespected bool,
) (*FaultDisputeGame, error) {
	if bond.Cmp(params.InitBond) != 0 {
		return nil, ErrIncorrectBondAmount
	}
	g := &FaultDisputeGame{
		log:                             logger.New("game", index, "gameType", params.GameType),
		world:                           w,
		weth:                            weth,
		anchors:                         anchors,
		metrics:                         m,
		index:                           index,
		addr:                            addr,
		params:                          params,
		extraData:                       append([]byte(nil), extraData...),
		l2SequenceNumber:                new(big.Int).SetBytes(extraData),
		createdAt:                       w.Now(),
		status:                          types.GameStatusInProgress,
		wasRespectedGameTypeWhenCreated: wasRespected,
		claimedMoves:                    make(map[types.MovePositionID]bool),
		subgames:                        make(map[int][]int),
		resolved:                        make(map[int]bool),
		distributionMode:                types.UndecidedDistributionMode,
		normalCredit:                    make(map[common.Address]*big.Int),
		refundCredit:                    make(map[common.Address]*big.Int),
	}
	if err := g.depositBond(creator, bond); err != nil {
		return nil, err
	}
	g.claims = append(g.claims, types.Claim{
		ClaimData: types.ClaimData{
			Value:    rootClaim,
			Bond:     new(big.Int).Set(bond),
			Position: types.RootPosition,
		},
		Claimant:            creator,
		Clock:               types.NewClock(0, w.Now()),
		ContractIndex:       0,
		ParentContractIndex: -1,
	})
	return g, nil
}

// depositBond pulls the bond from the claimant into the escrow under this
// game's account and records the refund-mode credit. A rejected deposit
// returns the bond to the claimant, so a failed move leaves the ledger
// unchanged.
func (g *FaultDisputeGame) depositBond(claimant common.Address, bond *big.Int) error {
	if err := g.world.Transfer(claimant, g.addr, bond); err != nil {
		return err
	}
	if err := g.weth.Deposit(g.addr, bond); err != nil {
		if rbErr := g.world.Transfer(g.addr, claimant, bond); rbErr != nil {
			return fmt.Errorf("escrow deposit failed: %w (bond refund failed: %v)", err, rbErr)
		}
		return err
	}
	g.creditRefund(claimant, bond)
	return nil
}

func (g *FaultDisputeGame) creditRefund(recipient common.Address, amount *big.Int) {
	g.trackParticipant(recipient)
	cur, ok := g.refundCredit[recipient]
	if !ok {
		cur = new(big.Int)
	}
	g.refundCredit[recipient] = cur.Add(cur, amount)
}

func (g *FaultDisputeGame) creditNormal(recipient common.Address, amount *big.Int) {
	g.trackParticipant(recipient)
	cur, ok := g.normalCredit[recipient]
	if !ok {
		cur = new(big.Int)
	}
	g.normalCredit[recipient] = cur.Add(cur, amount)
}

func (g *FaultDisputeGame) trackParticipant(addr common.Address) {
	for _, p := range g.participants {
		if p == addr {
			return
		}
	}
	g.participants = append(g.participants, addr)
}

// Addr returns the game's ledger account identity.
func (g *FaultDisputeGame) Addr() common.Address {
	return g.addr
}

// AnchorRegistry exposes the registry the game was bound to at creation,
// so the registry can verify a game claims it and not some other registry.
func (g *FaultDisputeGame) AnchorRegistry() any {
	return g.anchors
}

func (g *FaultDisputeGame) Index() uint64 {
	return g.index
}

func (g *FaultDisputeGame) GameType() types.GameType {
	return g.params.GameType
}

func (g *FaultDisputeGame) RootClaim() common.Hash {
	return g.claims[0].Value
}

func (g *FaultDisputeGame) ExtraData() []byte {
	return append([]byte(nil), g.extraData...)
}

// L2SequenceNumber is the L2 progression the root claim asserts, decoded
// from the extra data.
func (g *FaultDisputeGame) L2SequenceNumber() *big.Int {
	return new(big.Int).Set(g.l2SequenceNumber)
}

func (g *FaultDisputeGame) Status() types.GameStatus {
	return g.status
}

func (g *FaultDisputeGame) CreatedAt() time.Time {
	return g.createdAt
}

func (g *FaultDisputeGame) ResolvedAt() time.Time {
	return g.resolvedAt
}

func (g *FaultDisputeGame) WasRespectedGameTypeWhenCreated() bool {
	return g.wasRespectedGameTypeWhenCreated
}

func (g *FaultDisputeGame) MaxGameDepth() types.Depth {
	return g.params.MaxGameDepth
}

func (g *FaultDisputeGame) SplitDepth() types.Depth {
	return g.params.SplitDepth
}

func (g *FaultDisputeGame) MaxClockDuration() time.Duration {
	return g.params.MaxClockDuration
}

func (g *FaultDisputeGame) Closed() bool {
	return g.closed
}

func (g *FaultDisputeGame) DistributionMode() types.BondDistributionMode {
	return g.distributionMode
}

// ClaimCount returns the number of claims in the game.
func (g *FaultDisputeGame) ClaimCount() int {
	return len(g.claims)
}

// ClaimAt returns a copy of the claim at the given index.
func (g *FaultDisputeGame) ClaimAt(idx int) (types.Claim, error) {
	if idx < 0 || idx >= len(g.claims) {
		return types.Claim{}, ErrParentDoesNotExist
	}
	return g.claims[idx], nil
}

// GetAllClaims returns a copy of every claim in the game, in creation order.
func (g *FaultDisputeGame) GetAllClaims() []types.Claim {
	return append([]types.Claim(nil), g.claims...)
}

// Credit returns the amount currently owed to the recipient under the
// game's distribution mode. Before the game is closed this reports the
// normal-mode balance.
func (g *FaultDisputeGame) Credit(recipient common.Address) *big.Int {
	var credit *big.Int
	if g.distributionMode == types.RefundDistributionMode {
		credit = g.refundCredit[recipient]
	} else {
		credit = g.normalCredit[recipient]
	}
	if credit == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(credit)
}
