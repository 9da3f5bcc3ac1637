package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qms/virtual-queue/internal/config"
	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"
	"qms/virtual-queue/internal/store/postgres"

	"github.com/rs/zerolog/log"
)

func runMigrate(ctx context.Context, cfg config.Config, dir string) error {
	pool, err := newDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, pool, dir)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		log.Info().Msg("schema is up to date")
		return nil
	}
	log.Info().Strs("applied", applied).Msg("migrations applied")
	return nil
}

func runGrantAdmin(ctx context.Context, cfg config.Config, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("--email is required")
	}
	pool, err := newDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	st := postgres.NewStore(pool)

	account, err := st.FindAccountByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("find account %s: %w", email, err)
	}
	profile, _, err := st.EnsureProfile(ctx, store.EnsureProfileInput{UID: account.UID, Email: account.Email})
	if err != nil {
		return err
	}
	profile.Role = models.RoleAdmin
	profile.IsActive = true
	if err := st.PutProfile(ctx, profile); err != nil {
		return err
	}
	log.Info().Str("uid", profile.UID).Str("email", profile.Email).Msg("admin role granted")
	return nil
}

// runSeedLocations upserts the locations of a seed file, keeping each raw
// document so its coordinates are re-read the same way on every load.
func runSeedLocations(ctx context.Context, cfg config.Config, path string) error {
	if path == "" {
		path = defaultSeedFile
	}
	seeds, err := store.ReadLocationSeedFile(path)
	if err != nil {
		return fmt.Errorf("read seed %s: %w", path, err)
	}
	pool, err := newDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	st := postgres.NewStore(pool)

	for _, seed := range seeds {
		if err := st.UpsertLocation(ctx, seed.Location, seed.Document); err != nil {
			return fmt.Errorf("upsert %s: %w", seed.Location.LocationID, err)
		}
		if !seed.Location.HasMapLocation {
			log.Warn().Str("location_id", seed.Location.LocationID).Msg("location has no map coordinates")
		}
	}
	log.Info().Int("count", len(seeds)).Str("file", path).Msg("locations seeded")
	return nil
}
