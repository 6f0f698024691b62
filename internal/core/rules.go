package core

import (
	"context"
	"fmt"

	"distributor/pkg/domain"
)

// WriteOnceRule blocks any write that changes an existing value stored under
// one of names by contract. TTL bumps and restores are not writes.
func WriteOnceRule(contract domain.Address, names ...string) domain.Rule {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return writeOnceRule{contract: contract, names: set}
}

type writeOnceRule struct {
	contract domain.Address
	names    map[string]struct{}
}

func (writeOnceRule) Name() string { return "write_once" }

func (r writeOnceRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Action != domain.ActionSet || change.Key.Contract != r.contract {
			continue
		}
		if _, ok := r.names[change.Key.Name]; !ok {
			continue
		}
		if change.Before == nil || !change.ValueChanged() {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s is write-once", change.Key),
			Key:      change.Key,
		})
	}
	return res, nil
}
