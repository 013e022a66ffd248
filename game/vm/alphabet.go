package vm

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrMalformedState = errors.New("malformed alphabet state")

// absolutePrestateIndex is the trace index the absolute prestate encodes:
// one before the first real trace entry.
var absolutePrestateClaim = big.NewInt(140)

// AlphabetVM is a trivially verifiable trace: state i commits to the pair
// (i, claim_i) where claim_i simply counts up from a fixed start value. A
// step increments both words. It exists purely so game resolution can be
// exercised end to end without a real fault proof VM.
type AlphabetVM struct{}

func NewAlphabetVM() *AlphabetVM {
	return &AlphabetVM{}
}

// AbsolutePrestate returns the state witness that precedes trace index 0.
func (v *AlphabetVM) AbsolutePrestate() []byte {
	return EncodeAlphabetState(new(big.Int).Neg(big.NewInt(1)), absolutePrestateClaim)
}

// AbsolutePrestateHash returns the commitment to the absolute prestate.
func (v *AlphabetVM) AbsolutePrestateHash() common.Hash {
	return AlphabetStateHash(v.AbsolutePrestate())
}

// Step decodes the (index, claim) pair from stateData, increments both and
// returns the commitment to the resulting state. The proof blob is unused
// by the alphabet trace.
func (v *AlphabetVM) Step(stateData []byte, _ []byte) (common.Hash, error) {
	index, claim, err := DecodeAlphabetState(stateData)
	if err != nil {
		return common.Hash{}, err
	}
	index = new(big.Int).Add(index, big.NewInt(1))
	claim = new(big.Int).Add(claim, big.NewInt(1))
	return AlphabetStateHash(EncodeAlphabetState(index, claim)), nil
}

// EncodeAlphabetState packs an (index, claim) pair into the 64 byte state
// witness format. A negative index encodes as all-ones, marking the
// absolute prestate.
func EncodeAlphabetState(index, claim *big.Int) []byte {
	out := make([]byte, 64)
	if index.Sign() < 0 {
		for i := 0; i < 32; i++ {
			out[i] = 0xff
		}
	} else {
		index.FillBytes(out[:32])
	}
	claim.FillBytes(out[32:])
	return out
}

// DecodeAlphabetState unpacks a 64 byte state witness.
func DecodeAlphabetState(stateData []byte) (index *big.Int, claim *big.Int, err error) {
	if len(stateData) != 64 {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrMalformedState, len(stateData))
	}
	index = new(big.Int).SetBytes(stateData[:32])
	if stateData[0] == 0xff {
		index = new(big.Int).Neg(big.NewInt(1))
	}
	claim = new(big.Int).SetBytes(stateData[32:])
	return index, claim, nil
}

// AlphabetStateHash commits to a state witness.
func AlphabetStateHash(stateData []byte) common.Hash {
	return crypto.Keccak256Hash(stateData)
}

// AlphabetTraceProvider produces the honest claims for an alphabet trace.
// Dishonest actors in tests perturb its output.
type AlphabetTraceProvider struct {
	vm *AlphabetVM
}

func NewAlphabetTraceProvider() *AlphabetTraceProvider {
	return &AlphabetTraceProvider{vm: NewAlphabetVM()}
}

// StateAt returns the state witness at the given trace index.
func (p *AlphabetTraceProvider) StateAt(i *big.Int) []byte {
	claim := new(big.Int).Add(absolutePrestateClaim, new(big.Int).Add(i, big.NewInt(1)))
	return EncodeAlphabetState(i, claim)
}

// Get returns the honest claim commitment at the given trace index.
func (p *AlphabetTraceProvider) Get(i *big.Int) common.Hash {
	return AlphabetStateHash(p.StateAt(i))
}

// AbsolutePrestate exposes the underlying VM's absolute prestate witness.
func (p *AlphabetTraceProvider) AbsolutePrestate() []byte {
	return p.vm.AbsolutePrestate()
}
