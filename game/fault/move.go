package fault

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/dispute-engine/game/types"
	"github.com/mantlenetworkio/dispute-engine/world"
)

// Move bisects the claim at parentIndex: an attack disputes the parent
// claim, a defense agrees with it and disputes its successor. The caller
// must attach exactly the required bond for the resulting position and pass
// the parent claim value it believes it is countering, which guards
// against moves landing on a different claim after a reorg of intent.
// Returns the index of the new claim.
func (g *FaultDisputeGame) Move(caller common.Address, bond *big.Int, disputed common.Hash, parentIndex int, claim common.Hash, isAttack bool) (int, error) {
	if g.status != types.GameStatusInProgress {
		return 0, ErrGameNotInProgress
	}
	if parentIndex < 0 || parentIndex >= len(g.claims) {
		return 0, fmt.Errorf("%w: index %v", ErrParentDoesNotExist, parentIndex)
	}
	parent := g.claims[parentIndex]
	if parent.Value != disputed {
		return 0, ErrInvalidDisputedClaim
	}
	// Neither the game root nor an execution sub-game root can be defended:
	// both assert the rightmost state of their trace, so agreeing with them
	// leaves nothing to dispute.
	if !isAttack && (parentIndex == 0 || parent.Position.Depth() == g.params.SplitDepth+1) {
		return 0, ErrCannotDefendRootClaim
	}

	nextPosition := parent.Position.Move(isAttack)
	nextDepth := nextPosition.Depth()
	if nextDepth > g.params.MaxGameDepth {
		return 0, types.ErrGameDepthExceeded
	}
	// Crossing the split depth turns an output-root disagreement into an
	// execution-trace disagreement: the new claim must commit to a VM
	// outcome consistent with the direction of the move.
	if nextDepth == g.params.SplitDepth+1 {
		if err := g.verifyExecBisectionRoot(claim, parent.Position, isAttack); err != nil {
			return 0, err
		}
	}

	moveID := types.NewMovePositionID(parentIndex, nextPosition)
	if g.claimedMoves[moveID] {
		return 0, ErrClaimAlreadyExists
	}

	// The chess clock of the team responding to the parent claim must not
	// have run out, and the resulting clock is granted a bounded extension
	// when little time remains.
	nextDuration, err := g.nextClockDuration(parentIndex, nextDepth)
	if err != nil {
		return 0, err
	}

	required := g.RequiredBond(nextPosition)
	if bond.Cmp(required) != 0 {
		return 0, fmt.Errorf("%w: required %v, got %v", ErrIncorrectBondAmount, required, bond)
	}
	if err := g.depositBond(caller, bond); err != nil {
		return 0, err
	}

	claimIndex := len(g.claims)
	g.claims = append(g.claims, types.Claim{
		ClaimData: types.ClaimData{
			Value:    claim,
			Bond:     new(big.Int).Set(bond),
			Position: nextPosition,
		},
		Claimant:            caller,
		Clock:               types.NewClock(nextDuration, g.world.Now()),
		ContractIndex:       claimIndex,
		ParentContractIndex: parentIndex,
	})
	g.claimedMoves[moveID] = true
	g.subgames[parentIndex] = append(g.subgames[parentIndex], claimIndex)

	g.world.EmitEvent(world.Move{
		GameIndex:   g.index,
		ParentIndex: parentIndex,
		ClaimIndex:  claimIndex,
		Claim:       claim,
		Position:    nextPosition.ToGIndex(),
		Claimant:    caller,
	})
	g.metrics.RecordGameMove()
	g.log.Debug("Move made", "claimIdx", claimIndex, "parent", parentIndex, "attack", isAttack, "depth", nextDepth)
	return claimIndex, nil
}

// Attack disputes the claim at parentIndex.
func (g *FaultDisputeGame) Attack(caller common.Address, bond *big.Int, disputed common.Hash, parentIndex int, claim common.Hash) (int, error) {
	return g.Move(caller, bond, disputed, parentIndex, claim, true)
}

// Defend supports the claim at parentIndex by disputing its successor.
func (g *FaultDisputeGame) Defend(caller common.Address, bond *big.Int, disputed common.Hash, parentIndex int, claim common.Hash) (int, error) {
	return g.Move(caller, bond, disputed, parentIndex, claim, false)
}

// ChallengerDuration returns the time consumed by the chess clock of the
// team that must respond to the claim at claimIndex, capped at the max
// clock duration.
func (g *FaultDisputeGame) ChallengerDuration(claimIndex int) (time.Duration, error) {
	if claimIndex < 0 || claimIndex >= len(g.claims) {
		return 0, fmt.Errorf("%w: index %v", ErrParentDoesNotExist, claimIndex)
	}
	elapsed := types.ChessClock(g.world.Now(), g.claims[claimIndex])
	if elapsed > g.params.MaxClockDuration {
		elapsed = g.params.MaxClockDuration
	}
	return elapsed, nil
}

// nextClockDuration computes the clock inherited by a new child of
// parentIndex, applying the grace extension when the responder is nearly
// out of time.
func (g *FaultDisputeGame) nextClockDuration(parentIndex int, nextDepth types.Depth) (time.Duration, error) {
	nextDuration, err := g.ChallengerDuration(parentIndex)
	if err != nil {
		return 0, err
	}
	if nextDuration == g.params.MaxClockDuration {
		return 0, ErrClockTimeExceeded
	}
	if nextDuration > g.params.MaxClockDuration-g.params.ClockExtension {
		extension := g.params.ClockExtension
		// A grandchild at the execution sub-game root needs VM setup time,
		// and a grandchild at max depth needs step witness preparation
		// time, so both get a doubled extension.
		if nextDepth == g.params.SplitDepth-1 || nextDepth == g.params.MaxGameDepth-1 {
			extension *= 2
		}
		nextDuration = g.params.MaxClockDuration - extension
	}
	return nextDuration, nil
}

// RequiredBond computes the bond required to post a claim at the given
// position. The curve is geometric in depth so that griefing deeper into
// the tree stays costly relative to the remaining cost of the game.
func (g *FaultDisputeGame) RequiredBond(position types.Position) *big.Int {
	depth := position.Depth()
	if depth == 0 {
		return new(big.Int).Set(g.params.InitBond)
	}
	scale := new(big.Int).Exp(
		new(big.Int).SetUint64(g.params.BondMultiplier),
		new(big.Int).SetUint64(uint64(depth-1)),
		nil,
	)
	return scale.Mul(scale, g.params.BaseBond)
}

// verifyExecBisectionRoot checks the VM status byte of a claim entering the
// execution sub-game layer. When the move disputes the parent output the
// asserted trace must have ended invalid or panicked; when it supports a
// disputed successor the trace must have ended valid.
func (g *FaultDisputeGame) verifyExecBisectionRoot(claim common.Hash, parentPos types.Position, isAttack bool) error {
	// An even depth delta between the disputed output claim and the split
	// depth means the exec sub-game root is on the same side as the
	// disputed output.
	disputedLeafPos := parentPos
	if !isAttack {
		disputedLeafPos = parentPos.MoveRight()
	}
	disputesOutput := isAttack || disputedLeafPos.TraceAncestor().Depth()%2 == g.params.SplitDepth%2
	status := types.VMStatus(claim)
	if disputesOutput {
		if status != types.VMStatusInvalid && status != types.VMStatusPanic {
			return fmt.Errorf("%w: status %v", ErrUnexpectedRootClaim, status)
		}
	} else if status != types.VMStatusValid {
		return fmt.Errorf("%w: status %v", ErrUnexpectedRootClaim, status)
	}
	return nil
}
