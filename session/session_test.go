package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/yield-pacing/generic"
)

var fixedNow = time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), StorageKey+".json"))
	store.Now = func() time.Time { return fixedNow }
	return store
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "30", "exp": exp.Unix()})
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestFileStore_MissingFileIsSignedOut(t *testing.T) {
	assert.Nil(t, newStore(t).Current())
}

func TestFileStore_GarbageIsSignedOut(t *testing.T) {
	store := newStore(t)
	require.NoError(t, os.WriteFile(store.Path, []byte("{not json"), 0o600))
	assert.Nil(t, store.Current())
}

func TestFileStore_SaveAndRead(t *testing.T) {
	store := newStore(t)
	s := &Session{
		Token: "opaque-token",
		Exp:   fixedNow.Add(time.Hour).UnixMilli(),
		User:  User{ID: 30, Name: "山田", Role: "advisor"},
	}
	require.NoError(t, store.Save(s))

	got := store.Current()

	require.NotNil(t, got)
	assert.Equal(t, generic.AdvisorID(30), got.AdvisorID())
	assert.Equal(t, "山田", got.UserName())
	assert.Equal(t, "Bearer opaque-token", got.AuthHeader())
}

func TestFileStore_ExpiredSessionIsRemoved(t *testing.T) {
	// GIVEN: a session whose exp is one minute in the past
	// WHEN: reading it
	// THEN: it reads as signed out and the file is gone

	store := newStore(t)
	require.NoError(t, store.Save(&Session{Token: "t", Exp: fixedNow.Add(-time.Minute).UnixMilli()}))

	assert.Nil(t, store.Current())
	_, err := os.Stat(store.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestSession_JWTExpiryUsedWithoutExp(t *testing.T) {
	fresh := &Session{Token: signedToken(t, fixedNow.Add(time.Hour))}
	stale := &Session{Token: signedToken(t, fixedNow.Add(-time.Hour))}
	opaque := &Session{Token: "not-a-jwt"}

	assert.False(t, fresh.Expired(fixedNow))
	assert.True(t, stale.Expired(fixedNow))
	assert.False(t, opaque.Expired(fixedNow))
}

func TestSession_ExplicitExpWins(t *testing.T) {
	s := &Session{
		Token: signedToken(t, fixedNow.Add(-time.Hour)),
		Exp:   fixedNow.Add(time.Hour).UnixMilli(),
	}
	assert.False(t, s.Expired(fixedNow))
}

func TestSession_IdentityFallbacks(t *testing.T) {
	s := &Session{Name: "legacy", UserID: "12", User: User{ID: "abc"}}
	assert.Equal(t, generic.AdvisorID(12), s.AdvisorID())
	assert.Equal(t, "legacy", s.UserName())

	var none *Session
	assert.Zero(t, none.AdvisorID())
	assert.Empty(t, none.AuthHeader())
	assert.Empty(t, (&Session{Token: "  "}).AuthHeader())
}

func TestFileStore_Clear(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Clear())
	require.NoError(t, store.Save(&Session{Token: "t"}))
	require.NoError(t, store.Clear())
	assert.Nil(t, store.Current())
}
