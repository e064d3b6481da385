package dataset

import (
	"context"

	"merchant-governance/internal/governance"
)

// Source supplies a snapshot of merchant records.
type Source interface {
	Load(ctx context.Context) ([]governance.Merchant, error)
}

// Static serves a fixed slice of records.
type Static []governance.Merchant

// Load returns a copy of the records.
func (s Static) Load(ctx context.Context) ([]governance.Merchant, error) {
	return append([]governance.Merchant(nil), s...), nil
}

var _ Source = Static(nil)
