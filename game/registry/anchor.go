// Package registry tracks the canonical finalized (output root, L2
// sequence number) checkpoint per game type and the validity predicates
// downstream consumers must check before trusting a dispute game's claim.
// SetAnchorState is the single choke-point through which game outcomes may
// advance a checkpoint.
package registry

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/dispute-engine/game/types"
	"github.com/mantlenetworkio/dispute-engine/metrics"
	"github.com/mantlenetworkio/dispute-engine/world"
)

var (
	ErrInvalidAnchorGame      = errors.New("invalid anchor game")
	ErrAnchorNotFound         = errors.New("no anchor for game type")
	ErrNotGuardian            = errors.New("caller is not the guardian")
	ErrRetirementNotMonotonic = errors.New("retirement timestamp may only advance")
)

// GameLookup is the factory surface the registry uses to decide whether a
// game is registered.
type GameLookup interface {
	GameByUUID(uuid common.Hash) (types.DisputeGame, bool)
}

type AnchorStateRegistry struct {
	log     log.Logger
	world   *world.World
	metrics metrics.Metricer

	guardian      common.Address
	finalityDelay uint64 // seconds between resolution and finality

	games GameLookup

	anchors             map[types.GameType]types.Proposal
	respectedGameType   types.GameType
	blacklist           map[common.Address]bool
	retirementTimestamp uint64
}

func New(logger log.Logger, w *world.World, m metrics.Metricer, guardian common.Address, finalityDelay uint64, respected types.GameType, genesis map[types.GameType]types.Proposal) *AnchorStateRegistry {
	anchors := make(map[types.GameType]types.Proposal, len(genesis))
	for gameType, proposal := range genesis {
		anchors[gameType] = types.Proposal{
			Root:             proposal.Root,
			L2SequenceNumber: new(big.Int).Set(proposal.L2SequenceNumber),
		}
	}
	return &AnchorStateRegistry{
		log:               logger,
		world:             w,
		metrics:           m,
		guardian:          guardian,
		finalityDelay:     finalityDelay,
		anchors:           anchors,
		respectedGameType: respected,
		blacklist:         make(map[common.Address]bool),
	}
}

// SetGameLookup wires the factory in after construction; the factory and
// registry reference each other, so one side has to be bound late.
func (r *AnchorStateRegistry) SetGameLookup(games GameLookup) {
	r.games = games
}

func (r *AnchorStateRegistry) RespectedGameType() types.GameType {
	return r.respectedGameType
}

func (r *AnchorStateRegistry) RetirementTimestamp() uint64 {
	return r.retirementTimestamp
}

// GetAnchorRoot returns the current anchor for the game type.
func (r *AnchorStateRegistry) GetAnchorRoot(gameType types.GameType) (types.Proposal, error) {
	anchor, ok := r.anchors[gameType]
	if !ok {
		return types.Proposal{}, fmt.Errorf("%w: %v", ErrAnchorNotFound, gameType)
	}
	return types.Proposal{
		Root:             anchor.Root,
		L2SequenceNumber: new(big.Int).Set(anchor.L2SequenceNumber),
	}, nil
}

// Anchors is an alias read accessor; it always agrees with GetAnchorRoot.
func (r *AnchorStateRegistry) Anchors(gameType types.GameType) (types.Proposal, error) {
	return r.GetAnchorRoot(gameType)
}

// IsGameRegistered reports whether the factory created this game under its
// own identity and the game is bound to this registry.
func (r *AnchorStateRegistry) IsGameRegistered(game types.DisputeGame) bool {
	if r.games == nil {
		return false
	}
	uuid := types.GameUUID(game.GameType(), game.RootClaim(), game.ExtraData())
	registered, ok := r.games.GameByUUID(uuid)
	if !ok || registered != game {
		return false
	}
	owner, ok := game.(interface{ AnchorRegistry() any })
	return ok && owner.AnchorRegistry() == any(r)
}

// IsGameRespected reports whether the game was of the respected type when
// it was created. The snapshot is deliberate: a later change to the
// respected type must not retroactively disqualify in-flight games.
func (r *AnchorStateRegistry) IsGameRespected(game types.DisputeGame) bool {
	return game.WasRespectedGameTypeWhenCreated()
}

// IsGameBlacklisted reports whether the guardian invalidated this game.
func (r *AnchorStateRegistry) IsGameBlacklisted(game types.DisputeGame) bool {
	return r.blacklist[game.Addr()]
}

// IsGameRetired reports whether the game was created at or before the
// global retirement cutoff.
func (r *AnchorStateRegistry) IsGameRetired(game types.DisputeGame) bool {
	if r.retirementTimestamp == 0 {
		return false
	}
	return uint64(game.CreatedAt().Unix()) <= r.retirementTimestamp
}

// IsGameResolved reports whether the game reached a terminal status.
func (r *AnchorStateRegistry) IsGameResolved(game types.DisputeGame) bool {
	return game.Status() != types.GameStatusInProgress && !game.ResolvedAt().IsZero()
}

// IsGameFinalized reports whether the game is resolved and airgapped: the
// finality delay has fully elapsed since resolution.
func (r *AnchorStateRegistry) IsGameFinalized(game types.DisputeGame) bool {
	if !r.IsGameResolved(game) {
		return false
	}
	return uint64(r.world.Now().Sub(game.ResolvedAt()).Seconds()) >= r.finalityDelay
}

// IsGameProper reports whether the game may be considered at all:
// registered, not blacklisted, not retired, and the superchain not paused.
func (r *AnchorStateRegistry) IsGameProper(game types.DisputeGame) bool {
	return r.IsGameRegistered(game) &&
		!r.IsGameBlacklisted(game) &&
		!r.IsGameRetired(game) &&
		!r.world.Paused(world.PauseSuperchain)
}

// IsGameClaimValid is the single predicate a withdrawal path must check
// before trusting a game's claim.
func (r *AnchorStateRegistry) IsGameClaimValid(game types.DisputeGame) bool {
	return r.IsGameProper(game) &&
		r.IsGameRespected(game) &&
		r.IsGameResolved(game) &&
		r.IsGameFinalized(game)
}

// SetAnchorState advances the anchor for the game's type to the game's
// claim. Callable by anyone; the game must be proper, respected, resolved
// in the defender's favour, finalized, and strictly ahead of the current
// anchor. Any violation rejects the update with ErrInvalidAnchorGame.
func (r *AnchorStateRegistry) SetAnchorState(game types.DisputeGame) error {
	if !r.IsGameProper(game) {
		return fmt.Errorf("%w: game is not proper", ErrInvalidAnchorGame)
	}
	if !r.IsGameRespected(game) {
		return fmt.Errorf("%w: game type was not respected at creation", ErrInvalidAnchorGame)
	}
	if game.Status() != types.GameStatusDefenderWon {
		return fmt.Errorf("%w: game did not resolve in favour of the root claim", ErrInvalidAnchorGame)
	}
	if !r.IsGameFinalized(game) {
		return fmt.Errorf("%w: game is not finalized", ErrInvalidAnchorGame)
	}
	seq := game.L2SequenceNumber()
	if anchor, ok := r.anchors[game.GameType()]; ok && seq.Cmp(anchor.L2SequenceNumber) <= 0 {
		return fmt.Errorf("%w: sequence number %v does not advance anchor %v", ErrInvalidAnchorGame, seq, anchor.L2SequenceNumber)
	}

	r.anchors[game.GameType()] = types.Proposal{
		Root:             game.RootClaim(),
		L2SequenceNumber: seq,
	}
	r.world.EmitEvent(world.AnchorUpdated{
		Game:             game.Addr(),
		GameType:         game.GameType(),
		Root:             game.RootClaim(),
		L2SequenceNumber: seq,
	})
	r.metrics.RecordAnchorUpdated(game.GameType())
	r.log.Info("Anchor state updated", "gameType", game.GameType(), "root", game.RootClaim(), "l2SequenceNumber", seq)
	return nil
}

// SetRespectedGameType designates the game type future anchor updates must
// come from. Guardian only. In-flight games keep their creation-time
// snapshot.
func (r *AnchorStateRegistry) SetRespectedGameType(caller common.Address, gameType types.GameType) error {
	if caller != r.guardian {
		return ErrNotGuardian
	}
	r.respectedGameType = gameType
	r.world.EmitEvent(world.RespectedGameTypeSet{GameType: gameType})
	r.log.Info("Respected game type set", "gameType", gameType)
	return nil
}

// BlacklistDisputeGame invalidates a single game post-hoc. Guardian only.
// Already-advanced anchors are unaffected; the game simply becomes
// ineligible for future anchor updates and claim validity.
func (r *AnchorStateRegistry) BlacklistDisputeGame(caller common.Address, game types.DisputeGame) error {
	if caller != r.guardian {
		return ErrNotGuardian
	}
	r.blacklist[game.Addr()] = true
	r.world.EmitEvent(world.DisputeGameBlacklisted{Game: game.Addr()})
	r.log.Warn("Dispute game blacklisted", "game", game.Addr())
	return nil
}

// UpdateRetirementTimestamp invalidates every game created at or before
// the given cutoff. Guardian only; the cutoff only advances.
func (r *AnchorStateRegistry) UpdateRetirementTimestamp(caller common.Address, timestamp uint64) error {
	if caller != r.guardian {
		return ErrNotGuardian
	}
	if timestamp < r.retirementTimestamp {
		return ErrRetirementNotMonotonic
	}
	r.retirementTimestamp = timestamp
	r.world.EmitEvent(world.RetirementTimestampSet{Timestamp: timestamp})
	r.log.Warn("Retirement timestamp updated", "timestamp", timestamp)
	return nil
}
