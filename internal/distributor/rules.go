package distributor

import (
	"context"
	"fmt"

	"distributor/internal/core"
	"distributor/pkg/domain"
)

// RegisterRules adds the storage invariants of the distribution at contract to engine.
func RegisterRules(engine *domain.RulesEngine, contract domain.Address) {
	engine.Register(core.WriteOnceRule(contract, KeyIsInit, KeyFinalized, KeyToken, KeyDeadline, KeyClaim))
	engine.Register(frozenAllocationRule{contract: contract})
}

// frozenAllocationRule blocks allocation writes once finalization has
// committed in an earlier transaction.
type frozenAllocationRule struct {
	contract domain.Address
}

func (frozenAllocationRule) Name() string { return "frozen_allocation" }

func (r frozenAllocationRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	finalKey := domain.SymbolKey(r.contract, KeyFinalized)
	if _, ok := view.Get(domain.TierDurable, finalKey); !ok {
		return res, nil
	}
	for _, change := range changes {
		if change.Key == finalKey && change.Action == domain.ActionSet && change.Before == nil {
			// finalized by this transaction
			return res, nil
		}
	}
	for _, change := range changes {
		if change.Action != domain.ActionSet || change.Key.Contract != r.contract || change.Key.Name != KeyDist {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s written after finalization", change.Key),
			Key:      change.Key,
		})
	}
	return res, nil
}
