package world

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/dispute-engine/game/types"
)

// Event is an entry in the world's append-only audit log. Every externally
// observable state transition emits exactly one event.
type Event interface {
	EventName() string
}

type DisputeGameCreated struct {
	GameIndex uint64
	GameType  types.GameType
	RootClaim common.Hash
}

func (DisputeGameCreated) EventName() string { return "DisputeGameCreated" }

type Move struct {
	GameIndex   uint64
	ParentIndex int
	ClaimIndex  int
	Claim       common.Hash
	Position    *big.Int
	Claimant    common.Address
}

func (Move) EventName() string { return "Move" }

type StepCountered struct {
	GameIndex  uint64
	ClaimIndex int
	Stepper    common.Address
}

func (StepCountered) EventName() string { return "StepCountered" }

type ClaimResolved struct {
	GameIndex   uint64
	ClaimIndex  int
	CounteredBy common.Address
}

func (ClaimResolved) EventName() string { return "ClaimResolved" }

type Resolved struct {
	GameIndex uint64
	Status    types.GameStatus
}

func (Resolved) EventName() string { return "Resolved" }

type GameClosed struct {
	GameIndex        uint64
	DistributionMode types.BondDistributionMode
}

func (GameClosed) EventName() string { return "GameClosed" }

type AnchorUpdated struct {
	Game             common.Address
	GameType         types.GameType
	Root             common.Hash
	L2SequenceNumber *big.Int
}

func (AnchorUpdated) EventName() string { return "AnchorUpdated" }

type DisputeGameBlacklisted struct {
	Game common.Address
}

func (DisputeGameBlacklisted) EventName() string { return "DisputeGameBlacklisted" }

type RespectedGameTypeSet struct {
	GameType types.GameType
}

func (RespectedGameTypeSet) EventName() string { return "RespectedGameTypeSet" }

type RetirementTimestampSet struct {
	Timestamp uint64
}

func (RetirementTimestampSet) EventName() string { return "RetirementTimestampSet" }

type ETHUnlocked struct {
	Owner     common.Address
	Recipient common.Address
	Amount    *big.Int
}

func (ETHUnlocked) EventName() string { return "ETHUnlocked" }

type ETHWithdrawn struct {
	Owner     common.Address
	Recipient common.Address
	Amount    *big.Int
}

func (ETHWithdrawn) EventName() string { return "ETHWithdrawn" }
