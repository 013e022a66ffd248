package fault

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/dispute-engine/game/types"
	"github.com/mantlenetworkio/dispute-engine/world"
)

// ResolveClaim resolves the subgame rooted at claimIndex. Every child must
// already be resolved and the chess clock of the claim's challengers must
// have expired. The leftmost standing counter-claim refutes the claim; if
// none stands the claim survives and its claimant keeps the bond.
func (g *FaultDisputeGame) ResolveClaim(claimIndex int) error {
	if g.status != types.GameStatusInProgress {
		return ErrGameNotInProgress
	}
	if claimIndex < 0 || claimIndex >= len(g.claims) {
		return fmt.Errorf("%w: index %v", ErrParentDoesNotExist, claimIndex)
	}
	if g.resolved[claimIndex] {
		return ErrClaimAlreadyResolved
	}
	elapsed, err := g.ChallengerDuration(claimIndex)
	if err != nil {
		return err
	}
	if elapsed != g.params.MaxClockDuration {
		return fmt.Errorf("%w: %v of %v elapsed", ErrClockNotExpired, elapsed, g.params.MaxClockDuration)
	}

	claim := &g.claims[claimIndex]
	children := g.subgames[claimIndex]
	if len(children) == 0 {
		// Uncontested claim, or a leaf countered directly by a step. The
		// bond goes to whoever prevailed.
		recipient := claim.Claimant
		if claim.CounteredBy != (common.Address{}) {
			recipient = claim.CounteredBy
		}
		g.creditNormal(recipient, claim.Bond)
	} else {
		counteredBy := common.Address{}
		var leftmost *big.Int
		for _, childIndex := range children {
			if !g.resolved[childIndex] {
				return fmt.Errorf("%w: child %v unresolved", ErrOutOfOrderResolution, childIndex)
			}
			child := g.claims[childIndex]
			if child.CounteredBy != (common.Address{}) {
				continue
			}
			gindex := child.Position.ToGIndex()
			if leftmost == nil || gindex.Cmp(leftmost) < 0 {
				counteredBy = child.Claimant
				leftmost = gindex
			}
		}
		recipient := claim.Claimant
		if counteredBy != (common.Address{}) {
			recipient = counteredBy
		}
		g.creditNormal(recipient, claim.Bond)
		claim.CounteredBy = counteredBy
	}

	g.resolved[claimIndex] = true
	g.world.EmitEvent(world.ClaimResolved{GameIndex: g.index, ClaimIndex: claimIndex, CounteredBy: claim.CounteredBy})
	g.metrics.RecordClaimResolved()
	return nil
}

// Resolve finalizes the overall game outcome once the root subgame has
// been resolved. The defender wins iff the root claim stands uncountered.
// Irreversible.
func (g *FaultDisputeGame) Resolve() (types.GameStatus, error) {
	if g.status != types.GameStatusInProgress {
		return g.status, ErrGameNotInProgress
	}
	if !g.resolved[0] {
		return g.status, fmt.Errorf("%w: root claim unresolved", ErrOutOfOrderResolution)
	}
	if g.claims[0].CounteredBy == (common.Address{}) {
		g.status = types.GameStatusDefenderWon
	} else {
		g.status = types.GameStatusChallengerWon
	}
	g.resolvedAt = g.world.Now()
	g.world.EmitEvent(world.Resolved{GameIndex: g.index, Status: g.status})
	g.metrics.RecordGameResolved(g.status)
	g.log.Info("Game resolved", "status", g.status)
	return g.status, nil
}

// CloseGame airgaps a finalized game: it decides the bond distribution
// mode, unlocks every participant's credit in the escrow and, for a
// winning respected game, offers its claim to the anchor state registry.
// No further state changes are possible afterwards.
func (g *FaultDisputeGame) CloseGame() error {
	if g.closed {
		return ErrGameAlreadyClosed
	}
	if g.status == types.GameStatusInProgress {
		return ErrGameNotResolved
	}
	if !g.anchors.IsGameFinalized(g) {
		return ErrGameNotFinalized
	}

	// A game that is no longer proper (blacklisted, retired, paused) or
	// was never of the respected type cannot pay out on its merits; every
	// participant is refunded their own deposits instead.
	if g.anchors.IsGameProper(g) && g.anchors.IsGameRespected(g) {
		g.distributionMode = types.NormalDistributionMode
		if g.status == types.GameStatusDefenderWon {
			if err := g.anchors.SetAnchorState(g); err != nil {
				// Anchor updates race with other games; losing the race is
				// not a close failure.
				g.log.Debug("Anchor state not updated", "err", err)
			}
		}
	} else {
		g.distributionMode = types.RefundDistributionMode
	}

	credits := g.normalCredit
	if g.distributionMode == types.RefundDistributionMode {
		credits = g.refundCredit
	}
	// The escrow rejects unlocks while paused. Closing is committed only
	// once every participant's credit is unlocked, so a failed close can be
	// retried after the pause lifts.
	for _, recipient := range g.participants {
		credit := credits[recipient]
		if credit == nil || credit.Sign() == 0 {
			continue
		}
		if err := g.weth.Unlock(g.addr, recipient, credit); err != nil {
			return fmt.Errorf("failed to unlock credit for %v: %w", recipient, err)
		}
	}
	g.closed = true
	g.world.EmitEvent(world.GameClosed{GameIndex: g.index, DistributionMode: g.distributionMode})
	g.log.Info("Game closed", "mode", g.distributionMode)
	return nil
}

// ClaimCredit pays out the recipient's credit via the escrow. The game
// must be closed and the escrow's withdrawal delay elapsed since closing.
// Reverts with ErrNoCreditToClaim when nothing is owed so a no-op cannot
// be mistaken for a payout.
func (g *FaultDisputeGame) ClaimCredit(recipient common.Address) error {
	if !g.closed {
		return ErrGameNotClosed
	}
	var credits map[common.Address]*big.Int
	if g.distributionMode == types.RefundDistributionMode {
		credits = g.refundCredit
	} else {
		credits = g.normalCredit
	}
	credit := credits[recipient]
	if credit == nil || credit.Sign() == 0 {
		return ErrNoCreditToClaim
	}
	// Zero the balance before paying out.
	amount := new(big.Int).Set(credit)
	credit.SetInt64(0)
	if err := g.weth.WithdrawTo(g.addr, recipient, amount); err != nil {
		// Restore the balance so the recipient can retry once the delay
		// has elapsed.
		credit.Set(amount)
		return err
	}
	g.metrics.RecordBondClaimed(amount.Uint64())
	g.log.Debug("Credit claimed", "recipient", recipient, "amount", amount)
	return nil
}
