package auth

import "context"

var _ Checker = (*LoginChecker)(nil)

// Checker resolves a session token to the user id owning the session.
type Checker interface {
	UserID(ctx context.Context, token string) (string, error)
}
