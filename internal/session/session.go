// Package session carries the current user's identity through the core as an
// explicit value instead of ambient globals. Identity issuance (login,
// registration, token verification) is owned by the auth collaborator; the
// core only consumes the resolved profile.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/AhsanAkhlaq/skewplay/internal/model"
	"github.com/AhsanAkhlaq/skewplay/internal/store"
)

// ErrNotAuthenticated is returned when an operation requires a user and the
// session has none.
var ErrNotAuthenticated = errors.New("not authenticated")

// Context is one authenticated user's session. The cached profile is a local
// snapshot; quota pre-flight checks read it and may be stale relative to the
// store's counter.
type Context struct {
	profile *model.UserProfile
}

// Anonymous returns a session with no user attached.
func Anonymous() *Context {
	return &Context{}
}

// Attach binds a user to the session by loading their profile from the store.
func Attach(ctx context.Context, s store.Store, uid string) (*Context, error) {
	profile, err := s.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &Context{profile: profile}, nil
}

// Detach returns the anonymous session that replaces this one on logout.
// The server keeps no per-request session state, so this is called by
// long-lived session holders (clients, test fixtures) after POST /v1/logout.
func (c *Context) Detach() *Context {
	return Anonymous()
}

// UserID returns the current user's uid, or ErrNotAuthenticated.
func (c *Context) UserID() (string, error) {
	if c == nil || c.profile == nil {
		return "", ErrNotAuthenticated
	}
	return c.profile.UID, nil
}

// Profile returns the cached profile, or ErrNotAuthenticated.
func (c *Context) Profile() (*model.UserProfile, error) {
	if c == nil || c.profile == nil {
		return nil, ErrNotAuthenticated
	}
	return c.profile, nil
}

// Refresh reloads the cached profile from the store, narrowing the staleness
// window before quota-sensitive operations.
func (c *Context) Refresh(ctx context.Context, s store.Store) error {
	if c == nil || c.profile == nil {
		return ErrNotAuthenticated
	}
	profile, err := s.GetUser(ctx, c.profile.UID)
	if err != nil {
		return fmt.Errorf("refresh profile: %w", err)
	}
	c.profile = profile
	return nil
}
