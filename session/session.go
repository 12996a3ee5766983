/*
Package session reads the signed-in dashboard user.

PURPOSE:
  Every backend call carries the session token, and several lookups default
  to the session user (the advisor whose goals are shown, the department of
  the MS table). The session is a small JSON document stored under
  dashboard.session.v1; this package reads it from a file.

EXPIRY:
  A session is absent when its exp (unix milliseconds) is in the past. When
  exp is missing and the token is a JWT, the token's own exp claim decides.
  The claim is read without verifying the signature: the backend verifies,
  this side only avoids sending a token that is known to be stale.

SEE ALSO:
  - client/client.go: attaches AuthHeader to outbound requests
  - service/goalsettings.go: ResolveAdvisorID
*/
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/yield-pacing/generic"
)

// StorageKey names the session document.
const StorageKey = "dashboard.session.v1"

// =============================================================================
// SESSION
// =============================================================================

type User struct {
	ID          any    `json:"id,omitempty"`
	UserID      any    `json:"userId,omitempty"`
	Name        string `json:"name,omitempty"`
	FullName    string `json:"fullName,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	Department  string `json:"department,omitempty"`
}

type Session struct {
	Token string `json:"token"`
	Exp   int64  `json:"exp,omitempty"` // unix milliseconds
	User  User   `json:"user"`

	// Older documents keep these at the top level.
	Name   string `json:"name,omitempty"`
	UserID any    `json:"userId,omitempty"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	if s.Exp > 0 {
		return now.UnixMilli() > s.Exp
	}
	if exp, ok := tokenExpiry(s.Token); ok {
		return now.After(exp)
	}
	return false
}

// AdvisorID is the session user's numeric id, or 0.
func (s *Session) AdvisorID() generic.AdvisorID {
	if s == nil {
		return 0
	}
	for _, candidate := range []any{s.User.ID, s.User.UserID, s.UserID} {
		if id := generic.ParseAdvisorID(candidate); id.Valid() {
			return id
		}
	}
	return 0
}

// UserName is the first non-empty of name, fullName, displayName.
func (s *Session) UserName() string {
	if s == nil {
		return ""
	}
	for _, name := range []string{s.User.Name, s.User.FullName, s.User.DisplayName, s.Name} {
		if n := strings.TrimSpace(name); n != "" {
			return n
		}
	}
	return ""
}

// AuthHeader is "Bearer <token>", or "" without a token.
func (s *Session) AuthHeader() string {
	if s == nil || strings.TrimSpace(s.Token) == "" {
		return ""
	}
	return "Bearer " + s.Token
}

func tokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// =============================================================================
// PROVIDERS
// =============================================================================

// Provider returns the current session, or nil when signed out.
type Provider interface {
	Current() *Session
}

// Static always returns the same session.
type Static struct {
	Session *Session
}

func (s Static) Current() *Session { return s.Session }

// FileStore keeps the session document in a file. Unreadable, unparsable and
// expired documents read as signed out; expired ones are removed.
type FileStore struct {
	Path string
	Now  func() time.Time

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, Now: time.Now}
}

func (f *FileStore) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *FileStore) Current() *Session {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.Path)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if s.Expired(f.now()) {
		_ = os.Remove(f.Path)
		return nil
	}
	return &s
}

func (f *FileStore) Save(s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	return os.WriteFile(f.Path, data, 0o600)
}

func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
