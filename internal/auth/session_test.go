package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSessionStoreCreate(t *testing.T) {
	client, mock := redismock.NewClientMock()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sessions := NewRedisSessionStore(client)
	sessions.now = func() time.Time { return now }

	mock.CustomMatch(func(expected, actual []interface{}) error {
		key, _ := actual[1].(string)
		if !strings.HasPrefix(key, sessionKeyPrefix) {
			return fmt.Errorf("unexpected key %q", key)
		}
		if fmt.Sprint(actual[3:]) != fmt.Sprint(expected[3:]) {
			return fmt.Errorf("unexpected expiry %v", actual[3:])
		}
		return nil
	}).ExpectSet(sessionKeyPrefix+"any", "", time.Hour).SetVal("OK")

	session, err := sessions.Create(context.Background(), Identity{UID: "u1", Email: "ana@example.com"}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, now.Add(time.Hour), session.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSessionStoreGet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	sessions := NewRedisSessionStore(client)
	ctx := context.Background()

	stored := Session{Token: "tok-1", Identity: Identity{UID: "u1", Email: "ana@example.com"}, ExpiresAt: time.Date(2026, 3, 2, 17, 0, 0, 0, time.UTC)}
	payload, err := json.Marshal(stored)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		setup   func()
		want    Session
		wantErr error
	}{
		{
			name:  "found",
			token: "tok-1",
			setup: func() { mock.ExpectGet(sessionKeyPrefix + "tok-1").SetVal(string(payload)) },
			want:  stored,
		},
		{
			name:    "expired or unknown",
			token:   "tok-2",
			setup:   func() { mock.ExpectGet(sessionKeyPrefix + "tok-2").RedisNil() },
			wantErr: ErrSessionNotFound,
		},
		{
			name:    "empty token",
			token:   "",
			setup:   func() {},
			wantErr: ErrSessionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			got, err := sessions.Get(ctx, tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Identity, got.Identity)
			assert.True(t, tt.want.ExpiresAt.Equal(got.ExpiresAt))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSessionStoreGetError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	boom := errors.New("connection refused")
	mock.ExpectGet(sessionKeyPrefix + "tok").SetErr(boom)

	_, err := NewRedisSessionStore(client).Get(context.Background(), "tok")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionStoreDelete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectDel(sessionKeyPrefix + "tok").SetVal(1)

	require.NoError(t, NewRedisSessionStore(client).Delete(context.Background(), "tok"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sessions := NewMemorySessionStore(func() time.Time { return now })
	ctx := context.Background()

	session, err := sessions.Create(ctx, Identity{UID: "u1"}, time.Minute)
	require.NoError(t, err)

	got, err := sessions.Get(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.Identity.UID)

	now = now.Add(time.Minute)
	_, err = sessions.Get(ctx, session.Token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
