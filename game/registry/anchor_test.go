package registry_test

import (
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/mantlenetworkio/dispute-engine/clock"
	"github.com/mantlenetworkio/dispute-engine/game/escrow"
	"github.com/mantlenetworkio/dispute-engine/game/factory"
	"github.com/mantlenetworkio/dispute-engine/game/fault"
	"github.com/mantlenetworkio/dispute-engine/game/registry"
	"github.com/mantlenetworkio/dispute-engine/game/types"
	"github.com/mantlenetworkio/dispute-engine/game/vm"
	"github.com/mantlenetworkio/dispute-engine/metrics"
	"github.com/mantlenetworkio/dispute-engine/testlog"
	"github.com/mantlenetworkio/dispute-engine/world"
)

const (
	testMaxClockDuration = 8 * time.Hour
	testFinalityDelay    = uint64(3600)
)

var (
	guardian = common.Address{0x99}
	owner    = common.Address{0x01}
	creator  = common.Address{0xaa}

	initBond = big.NewInt(100)
)

type registryFixture struct {
	t        *testing.T
	clk      *clock.DeterministicClock
	world    *world.World
	registry *registry.AnchorStateRegistry
	factory  *factory.DisputeGameFactory
}

func setupRegistry(t *testing.T) *registryFixture {
	logger := testlog.Logger(t, slog.LevelDebug)
	clk := clock.NewDeterministicClock(time.Unix(1_700_000_000, 0))
	w := world.NewWorld(logger, clk, guardian)
	esc := escrow.New(logger, w, common.Address{0xee}, owner, 24*time.Hour)
	alphabet := vm.NewAlphabetVM()
	genesis := map[types.GameType]types.Proposal{
		types.AlphabetGameType: {Root: common.HexToHash("0x1111"), L2SequenceNumber: big.NewInt(0)},
	}
	reg := registry.New(logger, w, metrics.NoopMetrics, guardian, testFinalityDelay, types.AlphabetGameType, genesis)
	fac := factory.New(logger, w, esc, reg, metrics.NoopMetrics, owner)
	reg.SetGameLookup(fac)
	require.NoError(t, fac.SetImplementation(owner, types.AlphabetGameType, fault.GameParams{
		MaxGameDepth:     4,
		SplitDepth:       2,
		MaxClockDuration: testMaxClockDuration,
		ClockExtension:   time.Hour,
		InitBond:         new(big.Int).Set(initBond),
		BaseBond:         big.NewInt(10),
		BondMultiplier:   2,
		AbsolutePrestate: alphabet.AbsolutePrestateHash(),
		VM:               alphabet,
	}))
	w.Mint(creator, big.NewInt(1_000_000))
	return &registryFixture{t: t, clk: clk, world: w, registry: reg, factory: fac}
}

func (f *registryFixture) createGame(rootClaim common.Hash, seq int64) *fault.FaultDisputeGame {
	f.t.Helper()
	extraData := common.BigToHash(big.NewInt(seq)).Bytes()
	game, err := f.factory.Create(creator, new(big.Int).Set(initBond), types.AlphabetGameType, rootClaim, extraData)
	require.NoError(f.t, err)
	return game
}

// resolveUncontested lets the creator win the game by clock expiry.
func (f *registryFixture) resolveUncontested(game *fault.FaultDisputeGame) {
	f.t.Helper()
	f.clk.AdvanceTime(testMaxClockDuration)
	require.NoError(f.t, game.ResolveClaim(0))
	_, err := game.Resolve()
	require.NoError(f.t, err)
}

func (f *registryFixture) finalize() {
	f.clk.AdvanceTime(time.Duration(testFinalityDelay) * time.Second)
}

func TestGetAnchorRoot(t *testing.T) {
	f := setupRegistry(t)

	anchor, err := f.registry.GetAnchorRoot(types.AlphabetGameType)
	require.NoError(t, err)
	require.Equal(t, common.HexToHash("0x1111"), anchor.Root)
	require.Zero(t, anchor.L2SequenceNumber.Sign())

	// The returned proposal is a copy, not a window into the registry.
	anchor.L2SequenceNumber.SetInt64(999)
	anchor, err = f.registry.Anchors(types.AlphabetGameType)
	require.NoError(t, err)
	require.Zero(t, anchor.L2SequenceNumber.Sign())

	_, err = f.registry.GetAnchorRoot(types.CannonGameType)
	require.ErrorIs(t, err, registry.ErrAnchorNotFound)
}

func TestIsGameRegistered(t *testing.T) {
	f := setupRegistry(t)
	game := f.createGame(common.HexToHash("0xdead"), 100)
	require.True(t, f.registry.IsGameRegistered(game))

	// A game created under a different factory/registry pair is foreign,
	// even though its claim tuple is identical.
	other := setupRegistry(t)
	foreign := other.createGame(common.HexToHash("0xdead"), 100)
	require.False(t, f.registry.IsGameRegistered(foreign))
	require.True(t, other.registry.IsGameRegistered(foreign))
}

func TestRespectedGameTypeSnapshot(t *testing.T) {
	f := setupRegistry(t)
	game := f.createGame(common.HexToHash("0xdead"), 100)
	require.True(t, f.registry.IsGameRespected(game))

	require.ErrorIs(t, f.registry.SetRespectedGameType(creator, types.CannonGameType), registry.ErrNotGuardian)
	require.NoError(t, f.registry.SetRespectedGameType(guardian, types.CannonGameType))
	require.Equal(t, types.CannonGameType, f.registry.RespectedGameType())

	// In-flight games keep their creation-time snapshot; new games do not.
	require.True(t, f.registry.IsGameRespected(game))
	later := f.createGame(common.HexToHash("0xbeef"), 101)
	require.False(t, f.registry.IsGameRespected(later))
}

func TestBlacklist(t *testing.T) {
	f := setupRegistry(t)
	game := f.createGame(common.HexToHash("0xdead"), 100)

	require.ErrorIs(t, f.registry.BlacklistDisputeGame(creator, game), registry.ErrNotGuardian)
	require.False(t, f.registry.IsGameBlacklisted(game))

	require.NoError(t, f.registry.BlacklistDisputeGame(guardian, game))
	require.True(t, f.registry.IsGameBlacklisted(game))
	require.False(t, f.registry.IsGameProper(game))
}

func TestRetirement(t *testing.T) {
	f := setupRegistry(t)
	game := f.createGame(common.HexToHash("0xdead"), 100)
	require.False(t, f.registry.IsGameRetired(game))

	cutoff := f.world.Timestamp()
	require.ErrorIs(t, f.registry.UpdateRetirementTimestamp(creator, cutoff), registry.ErrNotGuardian)
	require.NoError(t, f.registry.UpdateRetirementTimestamp(guardian, cutoff))
	require.Equal(t, cutoff, f.registry.RetirementTimestamp())

	// Games created at or before the cutoff are retired.
	require.True(t, f.registry.IsGameRetired(game))
	require.False(t, f.registry.IsGameProper(game))

	f.clk.AdvanceTime(time.Minute)
	later := f.createGame(common.HexToHash("0xbeef"), 101)
	require.False(t, f.registry.IsGameRetired(later))

	// The cutoff only advances.
	err := f.registry.UpdateRetirementTimestamp(guardian, cutoff-1)
	require.ErrorIs(t, err, registry.ErrRetirementNotMonotonic)
}

func TestResolutionPredicates(t *testing.T) {
	f := setupRegistry(t)
	game := f.createGame(common.HexToHash("0xdead"), 100)
	require.False(t, f.registry.IsGameResolved(game))
	require.False(t, f.registry.IsGameFinalized(game))
	require.False(t, f.registry.IsGameClaimValid(game))

	f.resolveUncontested(game)
	require.True(t, f.registry.IsGameResolved(game))
	require.False(t, f.registry.IsGameFinalized(game), "airgap window still open")
	require.False(t, f.registry.IsGameClaimValid(game))

	f.finalize()
	require.True(t, f.registry.IsGameFinalized(game))
	require.True(t, f.registry.IsGameClaimValid(game))
}

func TestIsGameProperPause(t *testing.T) {
	f := setupRegistry(t)
	game := f.createGame(common.HexToHash("0xdead"), 100)
	require.True(t, f.registry.IsGameProper(game))

	require.NoError(t, f.world.Pause(guardian, world.PauseSuperchain))
	require.False(t, f.registry.IsGameProper(game))

	require.NoError(t, f.world.Unpause(guardian, world.PauseSuperchain))
	require.True(t, f.registry.IsGameProper(game))
}

func TestSetAnchorState(t *testing.T) {
	t.Run("AdvancesAnchor", func(t *testing.T) {
		f := setupRegistry(t)
		game := f.createGame(common.HexToHash("0xdead"), 100)
		f.resolveUncontested(game)
		f.finalize()

		require.NoError(t, f.registry.SetAnchorState(game))
		anchor, err := f.registry.GetAnchorRoot(types.AlphabetGameType)
		require.NoError(t, err)
		require.Equal(t, common.HexToHash("0xdead"), anchor.Root)
		require.Zero(t, anchor.L2SequenceNumber.Cmp(big.NewInt(100)))
	})
	t.Run("RejectsUnfinalized", func(t *testing.T) {
		f := setupRegistry(t)
		game := f.createGame(common.HexToHash("0xdead"), 100)
		f.resolveUncontested(game)
		require.ErrorIs(t, f.registry.SetAnchorState(game), registry.ErrInvalidAnchorGame)
	})
	t.Run("RejectsChallengerWin", func(t *testing.T) {
		f := setupRegistry(t)
		game := f.createGame(common.HexToHash("0xdead"), 100)
		// A lone attack that stands through expiry defeats the root claim.
		root, err := game.ClaimAt(0)
		require.NoError(t, err)
		_, err = game.Attack(creator, game.RequiredBond(root.Position.Attack()), root.Value, 0, common.HexToHash("0xb0b1"))
		require.NoError(t, err)
		f.clk.AdvanceTime(testMaxClockDuration)
		require.NoError(t, game.ResolveClaim(1))
		require.NoError(t, game.ResolveClaim(0))
		_, err = game.Resolve()
		require.NoError(t, err)
		f.finalize()

		require.ErrorIs(t, f.registry.SetAnchorState(game), registry.ErrInvalidAnchorGame)
	})
	t.Run("RejectsStaleSequenceNumber", func(t *testing.T) {
		f := setupRegistry(t)
		first := f.createGame(common.HexToHash("0xdead"), 100)
		second := f.createGame(common.HexToHash("0xbeef"), 100)
		f.resolveUncontested(first)
		// Clocks run together, so the second game is also resolvable.
		require.NoError(t, second.ResolveClaim(0))
		_, err := second.Resolve()
		require.NoError(t, err)
		f.finalize()

		require.NoError(t, f.registry.SetAnchorState(first))
		// The second game asserts the same sequence number and cannot
		// advance the anchor again.
		require.ErrorIs(t, f.registry.SetAnchorState(second), registry.ErrInvalidAnchorGame)
	})
	t.Run("RejectsBlacklisted", func(t *testing.T) {
		f := setupRegistry(t)
		game := f.createGame(common.HexToHash("0xdead"), 100)
		f.resolveUncontested(game)
		f.finalize()
		require.NoError(t, f.registry.BlacklistDisputeGame(guardian, game))

		require.ErrorIs(t, f.registry.SetAnchorState(game), registry.ErrInvalidAnchorGame)
	})
	t.Run("RejectsUnrespected", func(t *testing.T) {
		f := setupRegistry(t)
		require.NoError(t, f.registry.SetRespectedGameType(guardian, types.CannonGameType))
		game := f.createGame(common.HexToHash("0xdead"), 100)
		f.resolveUncontested(game)
		f.finalize()

		require.ErrorIs(t, f.registry.SetAnchorState(game), registry.ErrInvalidAnchorGame)
	})
}
