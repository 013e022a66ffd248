package types

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrGameDepthExceeded = errors.New("game depth exceeded")
)

type GameType uint32

const (
	CannonGameType       GameType = 0
	PermissionedGameType GameType = 1
	FastGameType         GameType = 254
	AlphabetGameType     GameType = 255
	UnknownGameType      GameType = math.MaxUint32
)

func (t GameType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t GameType) String() string {
	switch t {
	case CannonGameType:
		return "cannon"
	case PermissionedGameType:
		return "permissioned"
	case FastGameType:
		return "fast"
	case AlphabetGameType:
		return "alphabet"
	default:
		return fmt.Sprintf("<invalid: %d>", t)
	}
}

type GameStatus uint8

const (
	GameStatusInProgress GameStatus = iota
	GameStatusChallengerWon
	GameStatusDefenderWon
)

func (s GameStatus) String() string {
	switch s {
	case GameStatusInProgress:
		return "In Progress"
	case GameStatusChallengerWon:
		return "Challenger Won"
	case GameStatusDefenderWon:
		return "Defender Won"
	default:
		return fmt.Sprintf("<invalid: %d>", s)
	}
}

// GameStatusFromUint8 returns a game status from the uint8 representation.
func GameStatusFromUint8(i uint8) (GameStatus, error) {
	if i > 2 {
		return GameStatus(i), fmt.Errorf("invalid game status: %d", i)
	}
	return GameStatus(i), nil
}

type BondDistributionMode uint8

const (
	UndecidedDistributionMode BondDistributionMode = iota
	NormalDistributionMode
	RefundDistributionMode
)

// VM status bytes, prefixed onto execution trace claim hashes to commit to
// the outcome of the trace the claim asserts.
const (
	VMStatusValid      byte = 0
	VMStatusInvalid    byte = 1
	VMStatusPanic      byte = 2
	VMStatusUnfinished byte = 3
)

// VMStatus returns the status byte of an execution trace claim.
func VMStatus(claim common.Hash) byte {
	return claim[0]
}

// ClaimData is the core of a claim. It must be unique inside a specific game.
type ClaimData struct {
	Value common.Hash
	Bond  *big.Int
	Position
}

func (c *ClaimData) ValueBytes() [32]byte {
	responseBytes := c.Value.Bytes()
	var responseArr [32]byte
	copy(responseArr[:], responseBytes[:32])
	return responseArr
}

type ClaimID common.Hash

// Claim extends ClaimData with information about the relationship between
// two claims and the claim's own chess clock. If the position of the claim
// is depth 0, index 0 it is the root claim and the parent index is
// meaningless.
type Claim struct {
	ClaimData
	// CounteredBy is the claimant of the move that successfully countered
	// this claim, or the zero address while the claim stands.
	CounteredBy common.Address
	Claimant    common.Address
	Clock       Clock
	// Location of the claim & its parent inside the game's claim list.
	ContractIndex       int
	ParentContractIndex int
}

func (c Claim) ID() ClaimID {
	return ClaimID(crypto.Keccak256Hash(
		c.Position.ToGIndex().Bytes(),
		c.Value.Bytes(),
		big.NewInt(int64(c.ParentContractIndex)).Bytes(),
	))
}

// IsRoot returns true if this claim is the root claim.
func (c Claim) IsRoot() bool {
	return c.Position.IsRootPosition()
}

// MovePositionID identifies a move destination: the parent claim it
// responds to and the tree position the move lands on. At most one claim
// may ever exist per MovePositionID.
type MovePositionID struct {
	ParentIndex int
	GIndex      common.Hash
}

func NewMovePositionID(parentIndex int, pos Position) MovePositionID {
	return MovePositionID{
		ParentIndex: parentIndex,
		GIndex:      common.BigToHash(pos.ToGIndex()),
	}
}

// GameMetadata records the factory's view of a created game.
type GameMetadata struct {
	Index     uint64
	GameType  GameType
	Timestamp uint64
	UUID      common.Hash
	RootClaim common.Hash
	ExtraData []byte
}

// Proposal is the (output root, L2 sequence number) pair a game asserts and
// the anchor registry tracks.
type Proposal struct {
	Root             common.Hash
	L2SequenceNumber *big.Int
}

// ClockReader provides the current time from the ledger's perspective.
type ClockReader interface {
	Now() time.Time
}
