// Package service implements the Connect handlers. Each handler resolves
// the caller from the request context, delegates to a domain package and
// converts the result to its wire form.
package service

import (
	"context"
	"errors"

	"connectrpc.com/connect"

	"github.com/mmynk/zehem/internal/middleware"
)

// MemberDisplayCap is how many members ListMembers returns unless all are
// requested.
const MemberDisplayCap = 20

var errNoCaller = errors.New("request has no authenticated caller")

// callerID returns the authenticated account ID placed in ctx by
// middleware.RequireAuth.
func callerID(ctx context.Context) (string, error) {
	id := middleware.GetUserID(ctx)
	if id == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, errNoCaller)
	}
	return id, nil
}
