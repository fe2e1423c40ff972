// Package prefs persists the caller's publishing preferences: the access
// token and the blog repository.
package prefs

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a preference has never been set.
var ErrNotFound = errors.New("preference not set")

type Store interface {
	AccessToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string) error
	ClearAccessToken(ctx context.Context) error
	BlogRepo(ctx context.Context) (string, error)
	SetBlogRepo(ctx context.Context, ownerRepo string) error
}
