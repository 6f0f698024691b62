package core

import (
	"encoding/json"
	"fmt"

	"distributor/pkg/domain"
)

// Load decodes the value stored under key. A missing entry returns ok=false.
func Load[T any](view domain.TransactionView, tier domain.Tier, key domain.Key) (T, bool, error) {
	var out T
	entry, ok := view.Get(tier, key)
	if !ok {
		return out, false, nil
	}
	if err := json.Unmarshal(entry.Value, &out); err != nil {
		return out, true, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, true, nil
}

// Save encodes v and writes it under key.
func Save[T any](tx domain.Transaction, tier domain.Tier, key domain.Key, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return tx.Set(tier, key, raw)
}
