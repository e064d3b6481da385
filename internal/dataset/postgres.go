package dataset

import (
	"context"
	"fmt"

	"merchant-governance/internal/governance"
	"merchant-governance/internal/storage"
)

// StoreSource reads merchants from PostgreSQL.
type StoreSource struct {
	store storage.MerchantStore
}

// NewStoreSource wraps a merchant store.
func NewStoreSource(store storage.MerchantStore) *StoreSource {
	return &StoreSource{store: store}
}

// Load returns every stored merchant.
func (s *StoreSource) Load(ctx context.Context) ([]governance.Merchant, error) {
	merchants, err := s.store.ListMerchants(ctx)
	if err != nil {
		return nil, fmt.Errorf("load merchants: %w", err)
	}
	return merchants, nil
}

var _ Source = (*StoreSource)(nil)
