package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestMigrationsEmbedded(t *testing.T) {
	names, err := migrationNames()
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	if len(names) == 0 || names[0] != "migrations/0001_init.sql" {
		t.Fatalf("unexpected migrations: %v", names)
	}

	body, err := migrationFiles.ReadFile(names[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, table := range []string{"merchants", "evaluation_runs", "evaluation_results"} {
		if !strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("schema should create %s", table)
		}
	}
}

func TestUnconfiguredStore(t *testing.T) {
	var s *Store
	ctx := context.Background()

	if err := s.UpsertMerchants(ctx, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.ListMerchants(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.InsertRun(ctx, EvaluationRun{}, nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := s.ListRunResults(ctx, uuid.New()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, _, err := s.TryAdvisoryLock(ctx, 1); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	s.Close()
}
