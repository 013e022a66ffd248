package types

import (
	"encoding/binary"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DisputeGame is the read surface other components (the factory index and
// the anchor state registry) need from a game instance.
type DisputeGame interface {
	Addr() common.Address
	GameType() GameType
	RootClaim() common.Hash
	ExtraData() []byte
	L2SequenceNumber() *big.Int
	Status() GameStatus
	CreatedAt() time.Time
	ResolvedAt() time.Time
	WasRespectedGameTypeWhenCreated() bool
}

// GameUUID computes the deterministic identity of a game from its creation
// tuple. Two create calls with the same tuple identify the same game.
func GameUUID(gameType GameType, rootClaim common.Hash, extraData []byte) common.Hash {
	var gt [4]byte
	binary.BigEndian.PutUint32(gt[:], uint32(gameType))
	return crypto.Keccak256Hash(gt[:], rootClaim.Bytes(), extraData)
}

// GameAddr derives a game's ledger account identity from its UUID.
func GameAddr(uuid common.Hash) common.Address {
	return common.BytesToAddress(uuid[12:])
}
