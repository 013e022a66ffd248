// dispute-sim plays a dispute game against itself: a proposer posts a root
// claim, an honest challenger bisects it down to a single instruction and
// refutes it with a VM step, and the engine resolves, closes and pays out.
// It exists to exercise the full engine lifecycle from the command line.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/mantlenetworkio/dispute-engine/clock"
	"github.com/mantlenetworkio/dispute-engine/config"
	"github.com/mantlenetworkio/dispute-engine/game/escrow"
	"github.com/mantlenetworkio/dispute-engine/game/factory"
	"github.com/mantlenetworkio/dispute-engine/game/fault"
	"github.com/mantlenetworkio/dispute-engine/game/registry"
	"github.com/mantlenetworkio/dispute-engine/game/types"
	"github.com/mantlenetworkio/dispute-engine/game/vm"
	"github.com/mantlenetworkio/dispute-engine/metrics"
	"github.com/mantlenetworkio/dispute-engine/world"
)

var (
	guardianAddr   = common.Address{0x99}
	ownerAddr      = common.Address{0x01}
	vaultAddr      = common.Address{0xe0}
	proposerAddr   = common.Address{0xa1}
	challengerAddr = common.Address{0xc4}
)

var (
	ConfigFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML file overlaying the default protocol parameters",
	}
	SequenceFlag = &cli.Uint64Flag{
		Name:  "l2-sequence",
		Usage: "L2 sequence number the simulated root claim asserts",
		Value: 100,
	}
	HonestRootFlag = &cli.BoolFlag{
		Name:  "honest-root",
		Usage: "Propose a valid root claim and let it resolve uncontested",
	}
	MaxDepthFlag = &cli.Uint64Flag{
		Name:  "max-game-depth",
		Usage: "Overall depth of the simulated claim tree (must be even)",
		Value: 6,
	}
	SplitDepthFlag = &cli.Uint64Flag{
		Name:  "split-depth",
		Usage: "Depth at which output bisection hands over to the VM (must be even)",
		Value: 2,
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "Lowest log level to emit",
		Value: "info",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "dispute-sim"
	app.Usage = "Self-play simulator for the dispute engine"
	app.Flags = []cli.Flag{
		ConfigFlag,
		SequenceFlag,
		HonestRootFlag,
		MaxDepthFlag,
		SplitDepthFlag,
		LogLevelFlag,
	}
	app.Action = run
	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(ctx.String(LogLevelFlag.Name))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logger := log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stdout, logLevel, true))

	cfg := config.NewConfig(guardianAddr, ownerAddr)
	if path := ctx.String(ConfigFlag.Name); path != "" {
		if err := cfg.LoadTOML(path); err != nil {
			return err
		}
	}
	cfg.MaxGameDepth = types.Depth(ctx.Uint64(MaxDepthFlag.Name))
	cfg.SplitDepth = types.Depth(ctx.Uint64(SplitDepthFlag.Name))
	if err := cfg.Check(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	// The scripted ladder alternates proposer and challenger down the left
	// edge, which needs the exec sub-game root on the challenger's turn and
	// the leaf on the proposer's.
	if cfg.MaxGameDepth%2 != 0 || cfg.SplitDepth%2 != 0 {
		return errors.New("simulation requires even max game depth and split depth")
	}

	sim := newSimulator(logger, cfg)
	seq := int64(ctx.Uint64(SequenceFlag.Name))
	if ctx.Bool(HonestRootFlag.Name) {
		return sim.runUncontested(seq)
	}
	return sim.runDisputed(seq)
}

type simulator struct {
	log      log.Logger
	cfg      config.Config
	clk      *clock.DeterministicClock
	world    *world.World
	escrow   *escrow.Escrow
	registry *registry.AnchorStateRegistry
	factory  *factory.DisputeGameFactory
	provider *vm.AlphabetTraceProvider
}

func newSimulator(logger log.Logger, cfg config.Config) *simulator {
	clk := clock.NewDeterministicClock(time.Now())
	w := world.NewWorld(logger, clk, cfg.Guardian)
	esc := escrow.New(logger, w, vaultAddr, cfg.Owner, cfg.WithdrawalDelay)
	m := metrics.NewMetrics()
	genesis := map[types.GameType]types.Proposal{
		types.AlphabetGameType: {Root: crypto.Keccak256Hash([]byte("genesis")), L2SequenceNumber: big.NewInt(0)},
	}
	reg := registry.New(logger, w, m, cfg.Guardian, uint64(cfg.FinalityDelay.Seconds()), types.AlphabetGameType, genesis)
	fac := factory.New(logger, w, esc, reg, m, cfg.Owner)
	reg.SetGameLookup(fac)

	alphabet := vm.NewAlphabetVM()
	if err := fac.SetImplementation(cfg.Owner, types.AlphabetGameType, fault.GameParams{
		MaxGameDepth:     cfg.MaxGameDepth,
		SplitDepth:       cfg.SplitDepth,
		MaxClockDuration: cfg.MaxClockDuration,
		ClockExtension:   cfg.ClockExtension,
		InitBond:         cfg.InitBond,
		BaseBond:         cfg.BaseBond,
		BondMultiplier:   cfg.BondMultiplier,
		AbsolutePrestate: alphabet.AbsolutePrestateHash(),
		VM:               alphabet,
	}); err != nil {
		panic(err)
	}

	hundredEther := new(big.Int).Mul(big.NewInt(100), big.NewInt(1e18))
	w.Mint(proposerAddr, hundredEther)
	w.Mint(challengerAddr, hundredEther)

	return &simulator{
		log:      logger,
		cfg:      cfg,
		clk:      clk,
		world:    w,
		escrow:   esc,
		registry: reg,
		factory:  fac,
		provider: vm.NewAlphabetTraceProvider(),
	}
}

// runUncontested proposes a root claim that no one challenges and lets it
// flow through resolution into the anchor registry.
func (s *simulator) runUncontested(seq int64) error {
	game, err := s.createGame(seq)
	if err != nil {
		return err
	}
	s.clk.AdvanceTime(s.cfg.MaxClockDuration)
	if err := game.ResolveClaim(0); err != nil {
		return err
	}
	if _, err := game.Resolve(); err != nil {
		return err
	}
	return s.closeAndReport(game)
}

// runDisputed proposes an invalid root claim and plays the honest
// challenger against it: bisection down the left edge of the tree, then a
// single VM step refuting the proposer's leaf.
func (s *simulator) runDisputed(seq int64) error {
	game, err := s.createGame(seq)
	if err != nil {
		return err
	}

	parentIdx := 0
	for depth := types.Depth(1); depth <= s.cfg.MaxGameDepth; depth++ {
		mover := challengerAddr
		if depth%2 == 0 {
			mover = proposerAddr
		}
		parent, err := game.ClaimAt(parentIdx)
		if err != nil {
			return err
		}
		nextPos := parent.Position.Attack()
		claim := s.claimFor(nextPos, mover)
		idx, err := game.Attack(mover, game.RequiredBond(nextPos), parent.Value, parentIdx, claim)
		if err != nil {
			return fmt.Errorf("move at depth %v failed: %w", depth, err)
		}
		s.log.Info("Bisection move", "depth", depth, "claimIdx", idx, "mover", mover)
		parentIdx = idx
	}

	// The proposer's leaf commits to the first instruction, so the
	// challenger steps from the absolute prestate.
	if err := game.Step(challengerAddr, parentIdx, true, s.provider.AbsolutePrestate(), nil); err != nil {
		return fmt.Errorf("step failed: %w", err)
	}
	s.log.Info("Leaf claim countered by step", "claimIdx", parentIdx)

	s.clk.AdvanceTime(s.cfg.MaxClockDuration)
	for i := game.ClaimCount() - 1; i >= 0; i-- {
		if err := game.ResolveClaim(i); err != nil {
			return fmt.Errorf("failed to resolve claim %v: %w", i, err)
		}
	}
	if _, err := game.Resolve(); err != nil {
		return err
	}
	return s.closeAndReport(game)
}

func (s *simulator) createGame(seq int64) (*fault.FaultDisputeGame, error) {
	rootClaim := crypto.Keccak256Hash([]byte("output root"), big.NewInt(seq).Bytes())
	extraData := common.BigToHash(big.NewInt(seq)).Bytes()
	game, err := s.factory.Create(proposerAddr, s.cfg.InitBond, types.AlphabetGameType, rootClaim, extraData)
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return game, nil
}

// claimFor produces the scripted claim value for a left-edge position: the
// challenger plays the honest alphabet trace, the proposer plays garbage.
func (s *simulator) claimFor(pos types.Position, mover common.Address) common.Hash {
	depth := pos.Depth()
	if depth <= s.cfg.SplitDepth {
		// Output bisection claims are opaque to the engine.
		return crypto.Keccak256Hash([]byte("output"), big.NewInt(int64(depth)).Bytes(), mover.Bytes())
	}
	if mover == proposerAddr {
		return crypto.Keccak256Hash([]byte("garbage"), big.NewInt(int64(depth)).Bytes())
	}
	relative, err := pos.RelativeToAncestorAtDepth(s.cfg.SplitDepth + 1)
	if err != nil {
		panic(err)
	}
	execDepth := s.cfg.MaxGameDepth - s.cfg.SplitDepth - 1
	claim := s.provider.Get(relative.TraceIndex(execDepth))
	if depth == s.cfg.SplitDepth+1 {
		// The challenger asserts the proposer's output came from a trace
		// that ends invalid.
		claim[0] = types.VMStatusInvalid
	}
	return claim
}

// closeAndReport finalizes and closes the game, pays out both players and
// logs the end state.
func (s *simulator) closeAndReport(game *fault.FaultDisputeGame) error {
	s.clk.AdvanceTime(s.cfg.FinalityDelay)
	if err := game.CloseGame(); err != nil {
		return fmt.Errorf("failed to close game: %w", err)
	}
	s.clk.AdvanceTime(s.cfg.WithdrawalDelay)
	for _, player := range []common.Address{proposerAddr, challengerAddr} {
		if err := game.ClaimCredit(player); err != nil && !errors.Is(err, fault.ErrNoCreditToClaim) {
			return fmt.Errorf("failed to claim credit for %v: %w", player, err)
		}
	}

	s.log.Info("Game complete",
		"status", game.Status(),
		"mode", game.DistributionMode(),
		"proposerBalance", s.world.BalanceOf(proposerAddr),
		"challengerBalance", s.world.BalanceOf(challengerAddr))
	if anchor, err := s.registry.GetAnchorRoot(types.AlphabetGameType); err == nil {
		s.log.Info("Anchor state", "root", anchor.Root, "l2SequenceNumber", anchor.L2SequenceNumber)
	}
	return nil
}
