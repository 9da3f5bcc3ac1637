// Package auth signs people in and out and answers who a session belongs to
// and whether they may operate the admin console.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/observability"
	"qms/virtual-queue/internal/store"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrEmailTaken         = store.ErrEmailTaken
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrNotAdmin           = errors.New("admin access required")
)

type Options struct {
	SessionTTL time.Duration
	Now        func() time.Time
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type Service struct {
	accounts store.AccountStore
	profiles store.ProfileStore
	sessions SessionStore
	opts     Options
}

func NewService(accounts store.AccountStore, profiles store.ProfileStore, sessions SessionStore, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{accounts: accounts, profiles: profiles, sessions: sessions, opts: opts}
}

type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

type SignInResult struct {
	Session Session        `json:"session"`
	Profile models.Profile `json:"profile"`
}

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (SignInResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if len(input.Password) < MinPasswordLength {
		return SignInResult{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.opts.BcryptCost)
	if err != nil {
		return SignInResult{}, fmt.Errorf("hash password: %w", err)
	}
	account, err := s.accounts.CreateAccount(ctx, store.Account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.opts.Now(),
	})
	if err != nil {
		return SignInResult{}, err
	}
	return s.open(ctx, account, input.Name)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	account, err := s.accounts.FindAccountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return SignInResult{}, ErrInvalidCredentials
		}
		return SignInResult{}, err
	}
	if account.PasswordHash == "" {
		return SignInResult{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return SignInResult{}, ErrInvalidCredentials
	}
	return s.open(ctx, account, "")
}

type FederatedInput struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// FederatedSignIn trusts an assertion already verified upstream and maps it
// onto an account, linking by email when one exists.
func (s *Service) FederatedSignIn(ctx context.Context, input FederatedInput) (SignInResult, error) {
	account, created, err := s.accounts.LinkFederated(ctx, store.Account{
		UID:       uuid.NewString(),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Provider:  strings.TrimSpace(input.Provider),
		Subject:   strings.TrimSpace(input.Subject),
		CreatedAt: s.opts.Now(),
	})
	if err != nil {
		return SignInResult{}, err
	}
	if created {
		observability.LoggerFromContext(ctx).Info().
			Str("uid", account.UID).
			Str("provider", input.Provider).
			Msg("federated account created")
	}
	return s.open(ctx, account, input.Name)
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Resolve returns the identity behind a session token.
func (s *Service) Resolve(ctx context.Context, token string) (Identity, error) {
	session, err := s.sessions.Get(ctx, strings.TrimSpace(token))
	if err != nil {
		return Identity{}, err
	}
	return session.Identity, nil
}

// Profile returns the caller's profile, creating it on first access.
func (s *Service) Profile(ctx context.Context, identity Identity) (models.Profile, error) {
	profile, _, err := s.profiles.EnsureProfile(ctx, store.EnsureProfileInput{
		UID:   identity.UID,
		Email: identity.Email,
		At:    s.opts.Now(),
	})
	return profile, err
}

// VerifyAdmin checks the admin role and stamps the login time on success.
func (s *Service) VerifyAdmin(ctx context.Context, identity Identity) (models.Profile, error) {
	profile, err := s.Profile(ctx, identity)
	if err != nil {
		return models.Profile{}, err
	}
	if !profile.IsAdmin() {
		return profile, ErrNotAdmin
	}
	at := s.opts.Now()
	if err := s.profiles.TouchLastLogin(ctx, identity.UID, at); err != nil {
		return models.Profile{}, err
	}
	profile.LastLogin = &at
	return profile, nil
}

func (s *Service) open(ctx context.Context, account store.Account, name string) (SignInResult, error) {
	identity := Identity{UID: account.UID, Email: account.Email}
	profile, _, err := s.profiles.EnsureProfile(ctx, store.EnsureProfileInput{
		UID:   account.UID,
		Email: account.Email,
		Name:  name,
		At:    s.opts.Now(),
	})
	if err != nil {
		return SignInResult{}, err
	}
	session, err := s.sessions.Create(ctx, identity, s.opts.SessionTTL)
	if err != nil {
		return SignInResult{}, err
	}
	return SignInResult{Session: session, Profile: profile}, nil
}
