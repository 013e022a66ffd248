package fault_test

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

// The fixture game tree is deliberately tiny: two levels of output
// bisection above the split, a single-level execution sub-game below it.
const (
	testMaxGameDepth     = types.Depth(4)
	testSplitDepth       = types.Depth(2)
	testMaxClockDuration = 8 * time.Hour
	testClockExtension   = time.Hour
	testFinalityDelay    = uint64(3600)
	testWithdrawalDelay  = 24 * time.Hour
)

var (
	guardian  = common.Address{0x99}
	owner     = common.Address{0x01}
	vaultAddr = common.Address{0xee}
	alice     = common.Address{0xaa}
	bob       = common.Address{0xbb}
	carol     = common.Address{0xcc}
	dave      = common.Address{0xdd}

	startingBalance = big.NewInt(1_000_000)
	testInitBond    = big.NewInt(100)
	testBaseBond    = big.NewInt(10)
)

type gameFixture struct {
	t        *testing.T
	clk      *clock.DeterministicClock
	world    *world.World
	escrow   *escrow.Escrow
	registry *registry.AnchorStateRegistry
	factory  *factory.DisputeGameFactory
	provider *vm.AlphabetTraceProvider

	// game disputes a root claim posted by alice with sequence number 100.
	game *fault.FaultDisputeGame
}

func setupFixture(t *testing.T) *gameFixture {
	logger := testlog.Logger(t, slog.LevelDebug)
	clk := clock.NewDeterministicClock(time.Unix(1_700_000_000, 0))
	w := world.NewWorld(logger, clk, guardian)
	esc := escrow.New(logger, w, vaultAddr, owner, testWithdrawalDelay)
	genesis := map[types.GameType]types.Proposal{
		types.AlphabetGameType: {Root: common.HexToHash("0x1111"), L2SequenceNumber: big.NewInt(0)},
	}
	reg := registry.New(logger, w, metrics.NoopMetrics, guardian, testFinalityDelay, types.AlphabetGameType, genesis)
	fac := factory.New(logger, w, esc, reg, metrics.NoopMetrics, owner)
	reg.SetGameLookup(fac)

	alphabet := vm.NewAlphabetVM()
	require.NoError(t, fac.SetImplementation(owner, types.AlphabetGameType, fault.GameParams{
		MaxGameDepth:     testMaxGameDepth,
		SplitDepth:       testSplitDepth,
		MaxClockDuration: testMaxClockDuration,
		ClockExtension:   testClockExtension,
		InitBond:         new(big.Int).Set(testInitBond),
		BaseBond:         new(big.Int).Set(testBaseBond),
		BondMultiplier:   2,
		AbsolutePrestate: alphabet.AbsolutePrestateHash(),
		VM:               alphabet,
	}))

	// A second implementation with a deeper execution sub-game, for step
	// scenarios that need trace indices beyond the first.
	require.NoError(t, fac.SetImplementation(owner, types.FastGameType, fault.GameParams{
		MaxGameDepth:     testMaxGameDepth + 1,
		SplitDepth:       testSplitDepth,
		MaxClockDuration: testMaxClockDuration,
		ClockExtension:   testClockExtension,
		InitBond:         new(big.Int).Set(testInitBond),
		BaseBond:         new(big.Int).Set(testBaseBond),
		BondMultiplier:   2,
		AbsolutePrestate: alphabet.AbsolutePrestateHash(),
		VM:               alphabet,
	}))

	for _, addr := range []common.Address{alice, bob, carol, dave} {
		w.Mint(addr, new(big.Int).Set(startingBalance))
	}

	f := &gameFixture{
		t:        t,
		clk:      clk,
		world:    w,
		escrow:   esc,
		registry: reg,
		factory:  fac,
		provider: vm.NewAlphabetTraceProvider(),
	}
	f.game = f.createGame(common.HexToHash("0xdead"), 100)
	return f
}

func (f *gameFixture) createGame(rootClaim common.Hash, seq int64) *fault.FaultDisputeGame {
	f.t.Helper()
	extraData := common.BigToHash(big.NewInt(seq)).Bytes()
	game, err := f.factory.Create(alice, new(big.Int).Set(testInitBond), types.AlphabetGameType, rootClaim, extraData)
	require.NoError(f.t, err)
	return game
}

// createDeepGame creates a game under the deeper implementation.
func (f *gameFixture) createDeepGame(rootClaim common.Hash, seq int64) *fault.FaultDisputeGame {
	f.t.Helper()
	extraData := common.BigToHash(big.NewInt(seq)).Bytes()
	game, err := f.factory.Create(alice, new(big.Int).Set(testInitBond), types.FastGameType, rootClaim, extraData)
	require.NoError(f.t, err)
	return game
}

// moveBond returns the exact bond a move from parentIdx requires.
func (f *gameFixture) moveBond(game *fault.FaultDisputeGame, parentIdx int, isAttack bool) *big.Int {
	f.t.Helper()
	parent, err := game.ClaimAt(parentIdx)
	require.NoError(f.t, err)
	return game.RequiredBond(parent.Position.Move(isAttack))
}

func (f *gameFixture) attack(game *fault.FaultDisputeGame, caller common.Address, parentIdx int, claim common.Hash) int {
	f.t.Helper()
	parent, err := game.ClaimAt(parentIdx)
	require.NoError(f.t, err)
	idx, err := game.Attack(caller, f.moveBond(game, parentIdx, true), parent.Value, parentIdx, claim)
	require.NoError(f.t, err)
	return idx
}

func (f *gameFixture) defend(game *fault.FaultDisputeGame, caller common.Address, parentIdx int, claim common.Hash) int {
	f.t.Helper()
	parent, err := game.ClaimAt(parentIdx)
	require.NoError(f.t, err)
	idx, err := game.Defend(caller, f.moveBond(game, parentIdx, false), parent.Value, parentIdx, claim)
	require.NoError(f.t, err)
	return idx
}

// execRootClaim is the honest claim for the left-edge execution sub-game
// root with the given VM status byte applied.
func (f *gameFixture) execRootClaim(status byte) common.Hash {
	claim := f.provider.Get(big.NewInt(1))
	claim[0] = status
	return claim
}

// honestLeaf is the honest claim at the first trace index of the left-edge
// execution sub-game.
func (f *gameFixture) honestLeaf() common.Hash {
	return f.provider.Get(big.NewInt(0))
}

// buildToLeaf plays the standard ladder down the left edge of the tree:
// bob disputes alice's root, alice counters, bob posts the invalid
// execution sub-game root and alice commits to leafClaim at max depth.
// Returns the leaf claim's index.
func (f *gameFixture) buildToLeaf(game *fault.FaultDisputeGame, leafClaim common.Hash) int {
	f.t.Helper()
	c1 := f.attack(game, bob, 0, common.HexToHash("0xb0b1"))
	c2 := f.attack(game, alice, c1, common.HexToHash("0xa1ce"))
	c3 := f.attack(game, bob, c2, f.execRootClaim(types.VMStatusInvalid))
	return f.attack(game, alice, c3, leafClaim)
}

func (f *gameFixture) expireClocks() {
	f.clk.AdvanceTime(testMaxClockDuration)
}

// resolveAll resolves every subgame bottom-up and then the game itself.
func (f *gameFixture) resolveAll(game *fault.FaultDisputeGame) types.GameStatus {
	f.t.Helper()
	for i := game.ClaimCount() - 1; i >= 0; i-- {
		require.NoError(f.t, game.ResolveClaim(i))
	}
	status, err := game.Resolve()
	require.NoError(f.t, err)
	return status
}
