// Package factory creates and indexes dispute game instances. The factory
// is the sole registrar of which games exist: the anchor registry treats a
// game as registered only if the factory created it under the game's own
// identity.
package factory

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/mantlenetworkio/dispute-engine/game/escrow"
	"github.com/mantlenetworkio/dispute-engine/game/fault"
	"github.com/mantlenetworkio/dispute-engine/game/types"
	"github.com/mantlenetworkio/dispute-engine/metrics"
	"github.com/mantlenetworkio/dispute-engine/world"
)

var (
	ErrNotOwner            = errors.New("caller is not the factory owner")
	ErrImplementationSet   = errors.New("implementation already set for game type")
	ErrNoImplementation    = errors.New("no implementation for game type")
	ErrGameAlreadyExists   = errors.New("game already exists for this claim")
	ErrStaleSequenceNumber = errors.New("root claim sequence number is not ahead of the anchor")
	ErrIncorrectBondAmount = errors.New("incorrect init bond amount")
)

// AnchorRegistry is the registry surface the factory and its games need.
type AnchorRegistry interface {
	fault.AnchorStateRegistry
	GetAnchorRoot(gameType types.GameType) (types.Proposal, error)
	RespectedGameType() types.GameType
}

type DisputeGameFactory struct {
	log     log.Logger
	world   *world.World
	weth    *escrow.Escrow
	anchors AnchorRegistry
	metrics metrics.Metricer

	owner common.Address

	impls  map[types.GameType]fault.GameParams
	games  []*fault.FaultDisputeGame
	byUUID map[common.Hash]*fault.FaultDisputeGame
}

func New(logger log.Logger, w *world.World, weth *escrow.Escrow, anchors AnchorRegistry, m metrics.Metricer, owner common.Address) *DisputeGameFactory {
	return &DisputeGameFactory{
		log:     logger,
		world:   w,
		weth:    weth,
		anchors: anchors,
		metrics: m,
		owner:   owner,
		impls:   make(map[types.GameType]fault.GameParams),
		byUUID:  make(map[common.Hash]*fault.FaultDisputeGame),
	}
}

// SetImplementation registers the rules backing a game type. Owner only,
// and immutable once set: games already created under a type must never
// have their rules swapped out from underneath them.
func (f *DisputeGameFactory) SetImplementation(caller common.Address, gameType types.GameType, params fault.GameParams) error {
	if caller != f.owner {
		return ErrNotOwner
	}
	if _, ok := f.impls[gameType]; ok {
		return fmt.Errorf("%w: %v", ErrImplementationSet, gameType)
	}
	params.GameType = gameType
	f.impls[gameType] = params
	f.log.Info("Game implementation registered", "gameType", gameType)
	return nil
}

// InitBonds returns the bond required to create a game of the given type.
func (f *DisputeGameFactory) InitBonds(gameType types.GameType) (*big.Int, error) {
	params, ok := f.impls[gameType]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoImplementation, gameType)
	}
	return new(big.Int).Set(params.InitBond), nil
}

// GameImpls reports whether an implementation is registered for the type.
func (f *DisputeGameFactory) GameImpls(gameType types.GameType) bool {
	_, ok := f.impls[gameType]
	return ok
}

// Create instantiates a new dispute game for the claim tuple, seeded
// against the current anchor. Identical tuples identify the same game, so
// a second create with the same tuple fails rather than flooding the index
// with duplicate assertions.
func (f *DisputeGameFactory) Create(caller common.Address, bond *big.Int, gameType types.GameType, rootClaim common.Hash, extraData []byte) (*fault.FaultDisputeGame, error) {
	params, ok := f.impls[gameType]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoImplementation, gameType)
	}
	uuid := types.GameUUID(gameType, rootClaim, extraData)
	if _, ok := f.byUUID[uuid]; ok {
		return nil, fmt.Errorf("%w: uuid %v", ErrGameAlreadyExists, uuid)
	}
	if bond.Cmp(params.InitBond) != 0 {
		return nil, fmt.Errorf("%w: required %v, got %v", ErrIncorrectBondAmount, params.InitBond, bond)
	}

	// New games must assert progress beyond the current anchor; anything
	// at or behind it is already finalized history.
	seq := new(big.Int).SetBytes(extraData)
	if anchor, err := f.anchors.GetAnchorRoot(gameType); err == nil {
		if seq.Cmp(anchor.L2SequenceNumber) <= 0 {
			return nil, fmt.Errorf("%w: %v <= anchor %v", ErrStaleSequenceNumber, seq, anchor.L2SequenceNumber)
		}
	}

	wasRespected := f.anchors.RespectedGameType() == gameType
	index := uint64(len(f.games))
	game, err := fault.NewFaultDisputeGame(
		f.log, f.world, f.weth, f.anchors, f.metrics,
		index, types.GameAddr(uuid), params,
		caller, bond, rootClaim, extraData, wasRespected,
	)
	if err != nil {
		return nil, err
	}

	f.games = append(f.games, game)
	f.byUUID[uuid] = game
	f.world.EmitEvent(world.DisputeGameCreated{GameIndex: index, GameType: gameType, RootClaim: rootClaim})
	f.metrics.RecordGameCreated(gameType)
	f.log.Info("Dispute game created", "index", index, "gameType", gameType, "rootClaim", rootClaim, "l2SequenceNumber", seq)
	return game, nil
}

// GameCount returns the number of games created.
func (f *DisputeGameFactory) GameCount() uint64 {
	return uint64(len(f.games))
}

// GameAtIndex returns the metadata for the game at the given index.
func (f *DisputeGameFactory) GameAtIndex(idx uint64) (types.GameMetadata, error) {
	if idx >= uint64(len(f.games)) {
		return types.GameMetadata{}, fmt.Errorf("no game at index %v", idx)
	}
	return f.metadata(f.games[idx]), nil
}

// Games returns the game created for the given claim tuple, if any.
func (f *DisputeGameFactory) Games(gameType types.GameType, rootClaim common.Hash, extraData []byte) (*fault.FaultDisputeGame, bool) {
	game, ok := f.byUUID[types.GameUUID(gameType, rootClaim, extraData)]
	return game, ok
}

// GameByUUID returns the game with the given identity, if any.
func (f *DisputeGameFactory) GameByUUID(uuid common.Hash) (types.DisputeGame, bool) {
	game, ok := f.byUUID[uuid]
	if !ok {
		return nil, false
	}
	return game, true
}

// FindLatestGames returns up to maxCount games of the given type created
// at or after earliestTimestamp, newest first.
func (f *DisputeGameFactory) FindLatestGames(gameType types.GameType, earliestTimestamp uint64, maxCount int) []types.GameMetadata {
	var games []types.GameMetadata
	for i := len(f.games) - 1; i >= 0 && len(games) < maxCount; i-- {
		game := f.games[i]
		if uint64(game.CreatedAt().Unix()) < earliestTimestamp {
			break
		}
		if game.GameType() != gameType {
			continue
		}
		games = append(games, f.metadata(game))
	}
	return games
}

func (f *DisputeGameFactory) metadata(game *fault.FaultDisputeGame) types.GameMetadata {
	return types.GameMetadata{
		Index:     game.Index(),
		GameType:  game.GameType(),
		Timestamp: uint64(game.CreatedAt().Unix()),
		UUID:      types.GameUUID(game.GameType(), game.RootClaim(), game.ExtraData()),
		RootClaim: game.RootClaim(),
		ExtraData: game.ExtraData(),
	}
}
