package memory

import (
	"context"
	"strings"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"
)

func (s *Store) GetProfile(ctx context.Context, uid string) (models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[uid]
	if !ok {
		return models.Profile{}, store.ErrProfileNotFound
	}
	return profile, nil
}

func (s *Store) EnsureProfile(ctx context.Context, input store.EnsureProfileInput) (models.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profile, ok := s.profiles[input.UID]; ok {
		return profile, false, nil
	}
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = models.DefaultProfileName
	}
	profile := models.Profile{
		UID:       input.UID,
		Name:      name,
		Email:     input.Email,
		Role:      models.RoleCustomer,
		IsActive:  true,
		LastLogin: &at,
		CreatedAt: at,
	}
	s.profiles[input.UID] = profile
	return profile, true, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, uid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[uid]
	if !ok {
		return store.ErrProfileNotFound
	}
	profile.LastLogin = &at
	s.profiles[uid] = profile
	return nil
}

func (s *Store) MarkFirstQueueCompleted(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[uid]
	if !ok {
		return store.ErrProfileNotFound
	}
	profile.FirstQueueCompleted = true
	s.profiles[uid] = profile
	return nil
}

// PutProfile stores a profile as given, replacing any existing one. Used to
// seed operators.
func (s *Store) PutProfile(profile models.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UID] = profile
}

func (s *Store) CreateAccount(ctx context.Context, account store.Account) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.Email = normalizeEmail(account.Email)
	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return store.Account{}, store.ErrEmailTaken
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.UID] = account
	if account.Provider != "" && account.Subject != "" {
		s.federated[federatedKey(account.Provider, account.Subject)] = account.UID
	}
	return account, nil
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalizeEmail(email)
	for _, account := range s.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return store.Account{}, store.ErrAccountNotFound
}

func (s *Store) LinkFederated(ctx context.Context, account store.Account) (store.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := federatedKey(account.Provider, account.Subject)
	if uid, ok := s.federated[key]; ok {
		return s.accounts[uid], false, nil
	}
	account.Email = normalizeEmail(account.Email)
	if account.Email != "" {
		for uid, existing := range s.accounts {
			if existing.Email == account.Email {
				s.federated[key] = uid
				return existing, false, nil
			}
		}
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.accounts[account.UID] = account
	s.federated[key] = account.UID
	return account, true, nil
}

func federatedKey(provider, subject string) string {
	return provider + "|" + subject
}
