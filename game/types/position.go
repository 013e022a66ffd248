package types

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
)

var ErrPositionDepthTooSmall = errors.New("position depth is too small")

// Depth is the number of bisections required to reach a position from the
// root claim.
type Depth uint64

// Position is a golang wrapper around the dispute game Position type.
// Depth refers to how many bisection steps have occurred.
// IndexAtDepth refers to the path that the bisection has taken
// where 1 = goes right & 0 = goes left.
type Position struct {
	depth        Depth
	indexAtDepth *big.Int
}

func NewPosition(depth Depth, indexAtDepth *big.Int) Position {
	return Position{
		depth:        depth,
		indexAtDepth: indexAtDepth,
	}
}

// NewPositionFromGIndex creates a new Position given a generalized index.
func NewPositionFromGIndex(x *big.Int) Position {
	depth := bigMSB(x)
	withoutMSB := new(big.Int).Not(new(big.Int).Lsh(big.NewInt(1), uint(depth)))
	indexAtDepth := new(big.Int).And(x, withoutMSB)
	return NewPosition(depth, indexAtDepth)
}

func (p Position) String() string {
	return fmt.Sprintf("Position(depth: %v, indexAtDepth: %v)", p.depth, p.indexAtDepth)
}

// MoveRight returns the successor position in gindex order. For a rightmost
// position the successor carries into the leftmost slot of the next depth,
// so the result always round-trips through ToGIndex.
func (p Position) MoveRight() Position {
	return NewPositionFromGIndex(new(big.Int).Add(p.ToGIndex(), big.NewInt(1)))
}

// RelativeToAncestorAtDepth returns a new position for a subtree that is
// defined by the `ancestor` at depth `ancestorDepth`.
// The resulting position will have a depth of p.depth - ancestorDepth and
// an indexAtDepth of p.indexAtDepth without the ancestor's path prefix.
func (p Position) RelativeToAncestorAtDepth(ancestorDepth Depth) (Position, error) {
	if ancestorDepth > p.depth {
		return Position{}, ErrPositionDepthTooSmall
	}
	newPosDepth := p.depth - ancestorDepth
	nodesAtDepth := new(big.Int).Lsh(big.NewInt(1), uint(newPosDepth))
	newIndexAtDepth := new(big.Int).Mod(p.IndexAtDepth(), nodesAtDepth)
	return NewPosition(newPosDepth, newIndexAtDepth), nil
}

func (p Position) Depth() Depth {
	return p.depth
}

func (p Position) IndexAtDepth() *big.Int {
	if p.indexAtDepth == nil {
		return common0
	}
	return p.indexAtDepth
}

func (p Position) IsRootPosition() bool {
	return p.depth == 0 && common0.Cmp(p.IndexAtDepth()) == 0
}

func (p Position) lshIndex(amount Depth) *big.Int {
	return new(big.Int).Lsh(p.IndexAtDepth(), uint(amount))
}

// TraceIndex calculates the what the index of the claim value would be inside
// the trace. It is equivalent to going right until the final depth has been
// reached.
func (p Position) TraceIndex(maxDepth Depth) *big.Int {
	// When we go right, we do a shift left and set the bottom bit to be 1.
	// To do this in a single step, do all the shifts at once & or in all 1s
	// for the bottom bits.
	rd := maxDepth - p.depth
	rhs := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(rd)), big.NewInt(1))
	ti := new(big.Int).Or(p.lshIndex(rd), rhs)
	return ti
}

// move returns a new position at the left or right child.
func (p Position) move(right bool) Position {
	shiftIndex := p.lshIndex(1)
	if right {
		shiftIndex = shiftIndex.Or(shiftIndex, big.NewInt(1))
	}
	return Position{
		depth:        p.depth + 1,
		indexAtDepth: shiftIndex,
	}
}

func (p Position) parentIndexAtDepth() *big.Int {
	return new(big.Int).Div(p.IndexAtDepth(), big.NewInt(2))
}

func (p Position) RightOf(parent Position) bool {
	return p.parentIndexAtDepth().Cmp(parent.IndexAtDepth()) != 0
}

// parent return a new position that is the parent of this Position.
func (p Position) parent() Position {
	return Position{
		depth:        p.depth - 1,
		indexAtDepth: p.parentIndexAtDepth(),
	}
}

// Attack creates a new position which is the attack position of this one.
func (p Position) Attack() Position {
	return p.move(false)
}

// Defend creates a new position which is the defend position of this one.
func (p Position) Defend() Position {
	return p.MoveRight().move(false)
}

// Move returns the attack position if isAttack is true, else the defend
// position.
func (p Position) Move(isAttack bool) Position {
	if isAttack {
		return p.Attack()
	}
	return p.Defend()
}

// TraceAncestor returns the highest ancestor of this position that commits
// to the same trace index: trailing right-edges of the path are stripped.
func (p Position) TraceAncestor() Position {
	ancestor := p
	for !ancestor.IsRootPosition() && ancestor.IndexAtDepth().Bit(0) == 1 {
		ancestor = ancestor.parent()
	}
	return ancestor
}

// TraceAncestorBounded is like TraceAncestor but it never ascends above the
// given depth. Used inside execution sub-games whose root sits at
// splitDepth+1 rather than at the game root.
func (p Position) TraceAncestorBounded(lowerBound Depth) Position {
	ancestor := p
	for ancestor.depth > lowerBound && ancestor.IndexAtDepth().Bit(0) == 1 {
		ancestor = ancestor.parent()
	}
	return ancestor
}

func (p Position) ToGIndex() *big.Int {
	return new(big.Int).Or(new(big.Int).Lsh(big.NewInt(1), uint(p.depth)), p.IndexAtDepth())
}

var common0 = big.NewInt(0)

// bigMSB returns the index of the most significant bit
func bigMSB(x *big.Int) Depth {
	if x.Sign() == 0 {
		return 0
	}
	return Depth(x.BitLen() - 1)
}

// MSBIndex returns the index of the most significant bit of a uint64,
// i.e. the integer log base 2 rounded down.
func MSBIndex(x uint64) Depth {
	if x == 0 {
		return 0
	}
	return Depth(bits.Len64(x) - 1)
}

// RootPosition is the position of the root claim, gindex 1.
var RootPosition = NewPositionFromGIndex(big.NewInt(1))
