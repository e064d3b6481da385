package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"merchant-governance/internal/dataset"
)

// Import loads a CSV dataset into PostgreSQL so that the postgres source and
// the scheduled service can read it.
func (a *App) Import(ctx context.Context, opts ImportOptions) error {
	path := opts.Path
	if path == "" {
		path = a.Config.Dataset.Path
	}
	if path == "" {
		return errors.New("no dataset path; pass --file or set dataset.path")
	}

	merchants, err := dataset.NewCSV(path, a.Logger).Load(ctx)
	if err != nil {
		return err
	}

	if opts.DryRun {
		a.Logger.Warn().Int("merchants", len(merchants)).Msg("import dry-run: nothing written")
		return nil
	}

	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.Migrate {
		applied, err := store.Migrate(ctx)
		if err != nil {
			return err
		}
		a.Logger.Info().Strs("migrations", applied).Msg("schema up to date")
	}

	if err := store.UpsertMerchants(ctx, merchants); err != nil {
		return err
	}

	total, err := store.CountMerchants(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().Str("path", path).Int("imported", len(merchants)).Int64("stored", total).Msg("import complete")
	return nil
}

// Migrate applies the embedded schema migrations.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	applied, err := store.Migrate(ctx)
	if err != nil {
		return err
	}
	for _, name := range applied {
		fmt.Fprintln(os.Stdout, name)
	}
	return nil
}
