package fault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mantlenetworkio/dispute-engine/game/types"
	"github.com/mantlenetworkio/dispute-engine/world"
)

// Step resolves a single-instruction dispute against the max-depth claim at
// claimIndex. The caller provides the raw pre-state witness and a proof
// blob for the VM oracle. A successful step marks the claim countered; a
// step that would confirm the claim fails with ErrValidStep.
func (g *FaultDisputeGame) Step(caller common.Address, claimIndex int, isAttack bool, stateData []byte, proof []byte) error {
	if g.status != types.GameStatusInProgress {
		return ErrGameNotInProgress
	}
	if claimIndex < 0 || claimIndex >= len(g.claims) {
		return fmt.Errorf("%w: index %v", ErrParentDoesNotExist, claimIndex)
	}
	parent := &g.claims[claimIndex]
	parentPos := parent.Position
	if parentPos.Depth() != g.params.MaxGameDepth {
		return fmt.Errorf("%w: depth %v", ErrInvalidStepPosition, parentPos.Depth())
	}
	if parent.CounteredBy != (common.Address{}) {
		return ErrDuplicateStep
	}

	// Locate the pre and post states of the disputed instruction. An
	// attack disputes the transition into the parent claim; a defense
	// disputes the transition out of it.
	var preStateClaim common.Hash
	var postState types.ClaimData
	if isAttack {
		relative, err := parentPos.RelativeToAncestorAtDepth(g.params.SplitDepth + 1)
		if err != nil {
			return err
		}
		if relative.IndexAtDepth().Sign() == 0 {
			// First instruction of the execution sub-game: the pre-state
			// is the absolute prestate.
			preStateClaim = g.params.AbsolutePrestate
		} else {
			pre, err := g.findTraceAncestor(prevPosition(parentPos), claimIndex)
			if err != nil {
				return err
			}
			preStateClaim = pre.Value
		}
		postState = parent.ClaimData
	} else {
		preStateClaim = parent.Value
		post, err := g.findTraceAncestor(parentPos.MoveRight(), claimIndex)
		if err != nil {
			return err
		}
		postState = post.ClaimData
	}

	// The witness must hash to the pre-state commitment, ignoring the VM
	// status byte carried by sub-game root claims.
	if !claimsEqualIgnoringStatus(crypto.Keccak256Hash(stateData), preStateClaim) {
		return ErrInvalidPrestate
	}

	found, err := g.params.VM.Step(stateData, proof)
	if err != nil {
		return fmt.Errorf("vm step failed: %w", err)
	}
	validStep := found == postState.Value
	parentPostAgree := (parentPos.Depth()-postState.Position.Depth())%2 == 0
	if parentPostAgree == validStep {
		return ErrValidStep
	}

	parent.CounteredBy = caller
	g.world.EmitEvent(world.StepCountered{GameIndex: g.index, ClaimIndex: claimIndex, Stepper: caller})
	g.metrics.RecordGameStep()
	g.log.Debug("Step countered claim", "claimIdx", claimIndex, "attack", isAttack)
	return nil
}

// findTraceAncestor walks up the claim tree from the claim at startIndex
// looking for the claim at the highest position committing to the same
// trace index as pos, bounded to the execution sub-game.
func (g *FaultDisputeGame) findTraceAncestor(pos types.Position, startIndex int) (types.Claim, error) {
	target := pos.TraceAncestorBounded(g.params.SplitDepth + 1)
	ancestor := g.claims[startIndex]
	for ancestor.Position.ToGIndex().Cmp(target.ToGIndex()) != 0 {
		if ancestor.ParentContractIndex < 0 {
			return types.Claim{}, fmt.Errorf("%w: %v", ErrClaimNotFound, target)
		}
		ancestor = g.claims[ancestor.ParentContractIndex]
	}
	return ancestor, nil
}

// prevPosition returns the position one trace index to the left at the same
// depth.
func prevPosition(pos types.Position) types.Position {
	return types.NewPositionFromGIndex(new(big.Int).Sub(pos.ToGIndex(), big.NewInt(1)))
}

// claimsEqualIgnoringStatus compares two claim commitments, masking out the
// VM status byte in the most significant position.
func claimsEqualIgnoringStatus(a, b common.Hash) bool {
	a[0] = 0
	b[0] = 0
	return a == b
}
