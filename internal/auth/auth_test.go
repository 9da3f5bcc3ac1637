package auth_test

import (
	"context"
	"testing"
	"time"

	"qms/virtual-queue/internal/auth"
	"qms/virtual-queue/internal/models"
	"qms/virtual-queue/internal/store/memory"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"
)

type AuthServiceTestSuite struct {
	suite.Suite

	Store    *memory.Store
	Sessions *auth.MemorySessionStore
	Now      time.Time
	Service  *auth.Service
}

func (s *AuthServiceTestSuite) SetupTest() {
	s.Store = memory.New()
	s.Now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.Now }
	s.Sessions = auth.NewMemorySessionStore(clock)
	s.Service = auth.NewService(s.Store, s.Store, s.Sessions, auth.Options{Now: clock, BcryptCost: bcrypt.MinCost})
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

func (s *AuthServiceTestSuite) TestSignUpAndSignIn() {
	ctx := context.Background()

	signedUp, err := s.Service.SignUp(ctx, auth.SignUpInput{Email: " Ana@Example.com ", Password: "secret1", Name: "Ana"})
	s.Require().NoError(err)
	s.Equal("ana@example.com", signedUp.Session.Identity.Email)
	s.Equal("Ana", signedUp.Profile.Name)
	s.Equal(models.RoleCustomer, signedUp.Profile.Role)

	signedIn, err := s.Service.SignIn(ctx, "ana@example.com", "secret1")
	s.Require().NoError(err)
	s.Equal(signedUp.Profile.UID, signedIn.Profile.UID)
	s.NotEqual(signedUp.Session.Token, signedIn.Session.Token)

	identity, err := s.Service.Resolve(ctx, signedIn.Session.Token)
	s.Require().NoError(err)
	s.Equal(signedUp.Profile.UID, identity.UID)

	s.Require().NoError(s.Service.SignOut(ctx, signedIn.Session.Token))
	_, err = s.Service.Resolve(ctx, signedIn.Session.Token)
	s.ErrorIs(err, auth.ErrSessionNotFound)
}

func (s *AuthServiceTestSuite) TestSignUpRules() {
	ctx := context.Background()
	_, err := s.Service.SignUp(ctx, auth.SignUpInput{Email: "ben@example.com", Password: "12345"})
	s.ErrorIs(err, auth.ErrWeakPassword)

	_, err = s.Service.SignUp(ctx, auth.SignUpInput{Email: "ben@example.com", Password: "123456"})
	s.Require().NoError(err)
	_, err = s.Service.SignUp(ctx, auth.SignUpInput{Email: "BEN@example.com", Password: "abcdef"})
	s.ErrorIs(err, auth.ErrEmailTaken)
}

func (s *AuthServiceTestSuite) TestSignInRejects() {
	ctx := context.Background()
	_, err := s.Service.SignUp(ctx, auth.SignUpInput{Email: "ana@example.com", Password: "secret1"})
	s.Require().NoError(err)

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "unknown email", email: "nobody@example.com", password: "secret1"},
		{name: "wrong password", email: "ana@example.com", password: "secret2"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := s.Service.SignIn(ctx, tt.email, tt.password)
			s.ErrorIs(err, auth.ErrInvalidCredentials)
		})
	}
}

func (s *AuthServiceTestSuite) TestFederatedSignIn() {
	ctx := context.Background()
	first, err := s.Service.FederatedSignIn(ctx, auth.FederatedInput{Provider: "google", Subject: "sub-1", Email: "cy@example.com", Name: "Cy"})
	s.Require().NoError(err)
	s.Equal("Cy", first.Profile.Name)

	again, err := s.Service.FederatedSignIn(ctx, auth.FederatedInput{Provider: "google", Subject: "sub-1", Email: "cy@example.com"})
	s.Require().NoError(err)
	s.Equal(first.Profile.UID, again.Profile.UID)

	// a password account with the same email is linked, not duplicated
	local, err := s.Service.SignUp(ctx, auth.SignUpInput{Email: "dee@example.com", Password: "secret1"})
	s.Require().NoError(err)
	linked, err := s.Service.FederatedSignIn(ctx, auth.FederatedInput{Provider: "google", Subject: "sub-2", Email: "dee@example.com"})
	s.Require().NoError(err)
	s.Equal(local.Profile.UID, linked.Profile.UID)

	// federated-only accounts cannot sign in with a password
	_, err = s.Service.SignIn(ctx, "cy@example.com", "")
	s.ErrorIs(err, auth.ErrInvalidCredentials)
}

func (s *AuthServiceTestSuite) TestProfileIsCreatedLazily() {
	profile, err := s.Service.Profile(context.Background(), auth.Identity{UID: "u-new", Email: "new@example.com"})
	s.Require().NoError(err)
	s.Equal(models.DefaultProfileName, profile.Name)
	s.True(profile.IsActive)
	s.Equal(models.RoleCustomer, profile.Role)
}

func (s *AuthServiceTestSuite) TestVerifyAdmin() {
	ctx := context.Background()
	created := s.Now.Add(-24 * time.Hour)
	s.Store.PutProfile(models.Profile{UID: "admin-1", Email: "ops@example.com", Role: models.RoleAdmin, IsActive: true, CreatedAt: created})
	s.Store.PutProfile(models.Profile{UID: "admin-2", Email: "old@example.com", Role: models.RoleAdmin, IsActive: false, CreatedAt: created})

	profile, err := s.Service.VerifyAdmin(ctx, auth.Identity{UID: "admin-1"})
	s.Require().NoError(err)
	s.Require().NotNil(profile.LastLogin)
	s.Equal(s.Now, *profile.LastLogin)

	stored, err := s.Store.GetProfile(ctx, "admin-1")
	s.Require().NoError(err)
	s.Equal(s.Now, *stored.LastLogin)

	_, err = s.Service.VerifyAdmin(ctx, auth.Identity{UID: "admin-2"})
	s.ErrorIs(err, auth.ErrNotAdmin)

	_, err = s.Service.VerifyAdmin(ctx, auth.Identity{UID: "customer-1", Email: "c@example.com"})
	s.ErrorIs(err, auth.ErrNotAdmin)
}
