package types

import (
	"time"

	"github.com/holiman/uint256"
)

// Clock tracks the chess clock for a claim.
type Clock struct {
	// Duration is the time elapsed on the chess clock at the last update.
	Duration time.Duration

	// Timestamp is the time that the clock was last updated.
	Timestamp time.Time
}

// NewClock creates a new Clock instance.
func NewClock(duration time.Duration, timestamp time.Time) Clock {
	return Clock{
		Duration:  duration,
		Timestamp: timestamp,
	}
}

// Packed encodes the clock as a uint128: the duration in seconds occupies
// the high 64 bits and the unix timestamp the low 64 bits.
func (c Clock) Packed() *uint256.Int {
	word := new(uint256.Int).SetUint64(uint64(c.Duration.Seconds()))
	word.Lsh(word, 64)
	return word.Or(word, new(uint256.Int).SetUint64(uint64(c.Timestamp.Unix())))
}

// DecodeClock unpacks a packed uint128 clock word into a Clock.
func DecodeClock(packed *uint256.Int) Clock {
	duration := new(uint256.Int).Rsh(packed, 64).Uint64()
	// The low 64 bits are the unix timestamp.
	timestamp := packed.Uint64()
	return NewClock(time.Duration(duration)*time.Second, time.Unix(int64(timestamp), 0))
}

// ChessClock returns the total time elapsed on the chess clock of the team
// that must respond to the given claim, as of now.
func ChessClock(now time.Time, claim Claim) time.Duration {
	return claim.Clock.Duration + now.Sub(claim.Clock.Timestamp)
}
