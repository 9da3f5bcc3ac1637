package main

import (
	"context"
	"fmt"
	"os"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/config"
	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/notify"
	"qms/virtual-queue/internal/store/memory"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultSeedFile = "seeds/locations.yaml"

type devAdminFlags struct {
	Email    string
	Password string
}

// runDev serves both servers from one process on the in-memory store.
// Notifications always go through the in-process worker pool.
func runDev(ctx context.Context, cfg config.Config, admin devAdminFlags) error {
	st := memory.New()
	seed := cfg.Store.SeedFile
	if seed == "" {
		if _, err := os.Stat(defaultSeedFile); err == nil {
			seed = defaultSeedFile
		}
	}
	if seed != "" {
		if err := st.LoadSeedFile(seed); err != nil {
			return fmt.Errorf("load seed: %w", err)
		}
		log.Info().Str("file", seed).Msg("locations seeded")
	} else {
		log.Warn().Msg("no seed file, the location catalog is empty")
	}
	sessions := auth.NewMemorySessionStore(nil)
	dispatcher := notify.NewAsyncDispatcher(newWorker(cfg, st), cfg.Notify.Workers, cfg.Notify.Buffer)
	defer dispatcher.Close()

	if admin.Email != "" {
		if err := seedDevAdmin(ctx, cfg, st, sessions, admin); err != nil {
			return err
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return serveHTTP(ctx, cfg, st, sessions, dispatcher) })
	group.Go(func() error { return serveRealtime(ctx, cfg, st, sessions) })
	return group.Wait()
}

func seedDevAdmin(ctx context.Context, cfg config.Config, st *memory.Store, sessions auth.SessionStore, admin devAdminFlags) error {
	result, err := newAuthService(cfg, st, sessions).SignUp(ctx, auth.SignUpInput{
		Email:    admin.Email,
		Password: admin.Password,
		Name:     "Administrator",
	})
	if err != nil {
		return fmt.Errorf("create dev admin: %w", err)
	}
	profile := result.Profile
	profile.Role = models.RoleAdmin
	profile.IsActive = true
	st.PutProfile(profile)
	log.Info().Str("email", profile.Email).Msg("dev admin created")
	return nil
}
