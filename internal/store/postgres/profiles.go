package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const profileColumns = `uid, name, email, role, is_active, first_queue_completed, last_login, created_at`

func (s *Store) GetProfile(ctx context.Context, uid string) (models.Profile, error) {
	profile, err := scanProfile(s.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE uid = $1`, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Profile{}, store.ErrProfileNotFound
		}
		return models.Profile{}, err
	}
	return profile, nil
}

func (s *Store) EnsureProfile(ctx context.Context, input store.EnsureProfileInput) (models.Profile, bool, error) {
	at := input.At
	if at.IsZero() {
		at = s.now()
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = models.DefaultProfileName
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO profiles (uid, name, email, role, is_active, first_queue_completed, last_login, created_at)
		VALUES ($1, $2, $3, $4, TRUE, FALSE, $5, $5)
		ON CONFLICT (uid) DO NOTHING
		RETURNING `+profileColumns,
		input.UID, name, input.Email, models.RoleCustomer, at)
	profile, err := scanProfile(row)
	if err == nil {
		return profile, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Profile{}, false, err
	}
	profile, err = s.GetProfile(ctx, input.UID)
	if err != nil {
		return models.Profile{}, false, err
	}
	return profile, false, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, uid string, at time.Time) error {
	return s.updateProfile(ctx, `UPDATE profiles SET last_login = $2 WHERE uid = $1`, uid, at)
}

func (s *Store) MarkFirstQueueCompleted(ctx context.Context, uid string) error {
	return s.updateProfile(ctx, `UPDATE profiles SET first_queue_completed = TRUE WHERE uid = $1`, uid)
}

// PutProfile inserts or replaces a profile. Used to seed operators.
func (s *Store) PutProfile(ctx context.Context, profile models.Profile) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO profiles (uid, name, email, role, is_active, first_queue_completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (uid) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role, is_active = EXCLUDED.is_active
	`, profile.UID, profile.Name, profile.Email, profile.Role, profile.IsActive, profile.FirstQueueCompleted, profile.CreatedAt)
	return err
}

func (s *Store) updateProfile(ctx context.Context, query string, args ...interface{}) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrProfileNotFound
	}
	return nil
}

func scanProfile(row pgx.Row) (models.Profile, error) {
	var profile models.Profile
	var lastLogin sql.NullTime
	if err := row.Scan(&profile.UID, &profile.Name, &profile.Email, &profile.Role, &profile.IsActive,
		&profile.FirstQueueCompleted, &lastLogin, &profile.CreatedAt); err != nil {
		return models.Profile{}, err
	}
	profile.LastLogin = nullTimePtr(lastLogin)
	return profile, nil
}

func (s *Store) CreateAccount(ctx context.Context, account store.Account) (store.Account, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return store.Account{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now()
	}
	if err = insertAccount(ctx, tx, account); err != nil {
		return store.Account{}, err
	}
	if account.Provider != "" && account.Subject != "" {
		if err = insertIdentity(ctx, tx, account); err != nil {
			return store.Account{}, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return store.Account{}, err
	}
	return account, nil
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (store.Account, error) {
	var account store.Account
	var hash sql.NullString
	err := s.db.QueryRow(ctx, `
		SELECT uid, email, password_hash, created_at
		FROM accounts
		WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)).Scan(&account.UID, &account.Email, &hash, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Account{}, store.ErrAccountNotFound
		}
		return store.Account{}, err
	}
	account.PasswordHash = hash.String
	return account, nil
}

func (s *Store) LinkFederated(ctx context.Context, account store.Account) (store.Account, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return store.Account{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "identity:"+account.Provider+"|"+account.Subject); err != nil {
		return store.Account{}, false, err
	}

	var existing store.Account
	var hash sql.NullString
	err = tx.QueryRow(ctx, `
		SELECT a.uid, a.email, a.password_hash, a.created_at
		FROM account_identities i
		JOIN accounts a ON a.uid = i.uid
		WHERE i.provider = $1 AND i.subject = $2
	`, account.Provider, account.Subject).Scan(&existing.UID, &existing.Email, &hash, &existing.CreatedAt)
	if err == nil {
		existing.PasswordHash = hash.String
		existing.Provider = account.Provider
		existing.Subject = account.Subject
		if err = tx.Commit(ctx); err != nil {
			return store.Account{}, false, err
		}
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.Account{}, false, err
	}

	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now()
	}
	created := true
	if account.Email != "" {
		err = tx.QueryRow(ctx, `
			SELECT uid, email, password_hash, created_at
			FROM accounts
			WHERE lower(email) = $1
		`, account.Email).Scan(&existing.UID, &existing.Email, &hash, &existing.CreatedAt)
		switch {
		case err == nil:
			existing.PasswordHash = hash.String
			existing.Provider = account.Provider
			existing.Subject = account.Subject
			account = existing
			created = false
		case errors.Is(err, pgx.ErrNoRows):
			err = nil
		default:
			return store.Account{}, false, err
		}
	}
	if created {
		if err = insertAccount(ctx, tx, account); err != nil {
			return store.Account{}, false, err
		}
	}
	if err = insertIdentity(ctx, tx, account); err != nil {
		return store.Account{}, false, err
	}
	if err = tx.Commit(ctx); err != nil {
		return store.Account{}, false, err
	}
	return account, created, nil
}

func insertAccount(ctx context.Context, tx pgx.Tx, account store.Account) error {
	var hash interface{}
	if account.PasswordHash != "" {
		hash = account.PasswordHash
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (uid, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, account.UID, account.Email, hash, account.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrEmailTaken
	}
	return err
}

func insertIdentity(ctx context.Context, tx pgx.Tx, account store.Account) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO account_identities (provider, subject, uid, created_at)
		VALUES ($1, $2, $3, $4)
	`, account.Provider, account.Subject, account.UID, account.CreatedAt)
	return err
}
