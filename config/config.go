// Package config carries the protocol parameters of the dispute engine.
// The constants are deployment configuration, not protocol essentials: the
// engine only requires the invariants Check enforces (bond curve monotone,
// split depth strictly inside the tree, extension below the clock bound).
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-multierror"

	"github.com/mantlenetworkio/dispute-engine/game/types"
)

var (
	ErrMaxDepthTooSmall        = errors.New("max game depth must exceed split depth by at least 2")
	ErrSplitDepthZero          = errors.New("split depth must not be 0")
	ErrMissingMaxClockDuration = errors.New("missing max clock duration")
	ErrClockExtensionTooLarge  = errors.New("clock extension must be less than max clock duration")
	ErrMissingBond             = errors.New("init bond and base bond must be positive")
	ErrBondMultiplierTooSmall  = errors.New("bond multiplier must be at least 1")
	ErrMissingGuardian         = errors.New("missing guardian address")
	ErrMissingOwner            = errors.New("missing owner address")
	ErrMissingWithdrawalDelay  = errors.New("missing withdrawal delay")
	ErrMissingFinalityDelay    = errors.New("missing dispute game finality delay")
)

const (
	DefaultMaxGameDepth     = types.Depth(73)
	DefaultSplitDepth       = types.Depth(30)
	DefaultMaxClockDuration = 3*24*time.Hour + 12*time.Hour
	DefaultClockExtension   = 3 * time.Hour
	// DefaultWithdrawalDelay is the DelayedWETH unlock-to-withdraw delay.
	DefaultWithdrawalDelay = 7 * 24 * time.Hour
	// DefaultFinalityDelay is the airgap window between game resolution and
	// the game's claim becoming withdrawal-safe.
	DefaultFinalityDelay     = 3*24*time.Hour + 12*time.Hour
	DefaultBondMultiplier    = uint64(2)
	DefaultRespectedGameType = types.CannonGameType
)

// DefaultInitBond is the bond required to create a game (root claim bond).
var DefaultInitBond = big.NewInt(80_000_000_000_000_000) // 0.08 ether

// DefaultBaseBond is the bond for a depth-1 move; deeper moves scale
// geometrically by BondMultiplier.
var DefaultBaseBond = big.NewInt(100_000_000_000_000_000) // 0.1 ether

type Config struct {
	MaxGameDepth     types.Depth   `toml:"max_game_depth"`
	SplitDepth       types.Depth   `toml:"split_depth"`
	MaxClockDuration time.Duration `toml:"max_clock_duration"`
	ClockExtension   time.Duration `toml:"clock_extension"`

	WithdrawalDelay time.Duration `toml:"withdrawal_delay"`
	FinalityDelay   time.Duration `toml:"finality_delay"`

	InitBond       *big.Int `toml:"-"`
	BaseBond       *big.Int `toml:"-"`
	BondMultiplier uint64   `toml:"bond_multiplier"`

	RespectedGameType types.GameType `toml:"respected_game_type"`

	Guardian common.Address `toml:"guardian"`
	Owner    common.Address `toml:"owner"`
}

// NewConfig returns a config with the production-shaped defaults for the
// given privileged principals.
func NewConfig(guardian, owner common.Address) Config {
	return Config{
		MaxGameDepth:      DefaultMaxGameDepth,
		SplitDepth:        DefaultSplitDepth,
		MaxClockDuration:  DefaultMaxClockDuration,
		ClockExtension:    DefaultClockExtension,
		WithdrawalDelay:   DefaultWithdrawalDelay,
		FinalityDelay:     DefaultFinalityDelay,
		InitBond:          new(big.Int).Set(DefaultInitBond),
		BaseBond:          new(big.Int).Set(DefaultBaseBond),
		BondMultiplier:    DefaultBondMultiplier,
		RespectedGameType: DefaultRespectedGameType,
		Guardian:          guardian,
		Owner:             owner,
	}
}

// LoadTOML overlays values from a TOML file onto the config.
func (c *Config) LoadTOML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %v: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %v: %w", path, err)
	}
	return nil
}

// Check validates the config, aggregating every violation rather than
// stopping at the first.
func (c Config) Check() error {
	var result error
	if c.SplitDepth == 0 {
		result = multierror.Append(result, ErrSplitDepthZero)
	}
	if c.MaxGameDepth < c.SplitDepth+2 {
		result = multierror.Append(result, ErrMaxDepthTooSmall)
	}
	if c.MaxClockDuration == 0 {
		result = multierror.Append(result, ErrMissingMaxClockDuration)
	}
	if c.ClockExtension >= c.MaxClockDuration {
		result = multierror.Append(result, ErrClockExtensionTooLarge)
	}
	if c.InitBond == nil || c.InitBond.Sign() <= 0 || c.BaseBond == nil || c.BaseBond.Sign() <= 0 {
		result = multierror.Append(result, ErrMissingBond)
	}
	if c.BondMultiplier < 1 {
		result = multierror.Append(result, ErrBondMultiplierTooSmall)
	}
	if c.WithdrawalDelay == 0 {
		result = multierror.Append(result, ErrMissingWithdrawalDelay)
	}
	if c.FinalityDelay == 0 {
		result = multierror.Append(result, ErrMissingFinalityDelay)
	}
	if c.Guardian == (common.Address{}) {
		result = multierror.Append(result, ErrMissingGuardian)
	}
	if c.Owner == (common.Address{}) {
		result = multierror.Append(result, ErrMissingOwner)
	}
	return result
}
