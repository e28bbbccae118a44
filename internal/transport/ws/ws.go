// Package ws serves the live feeds over WebSocket: a group's messages and
// an account's balance. Browsers cannot set headers on the handshake, so
// the bearer token may also be passed as the token query parameter.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mmynk/zehem/internal/auth"
	"github.com/mmynk/zehem/internal/directory"
	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/ledger"
	"github.com/mmynk/zehem/internal/messagelog"
	"github.com/mmynk/zehem/internal/metrics"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/notify"
	"github.com/mmynk/zehem/internal/rpc"
)

type Handlers struct {
	jwt      *auth.JWTManager
	dir      *directory.Directory
	log      *messagelog.Log
	tracker  *notify.Tracker
	ledger   *ledger.Ledger
	upgrader websocket.Upgrader
}

// NewHandlers creates the feed handlers. allowedOrigins is matched against
// the handshake Origin header; "*" allows any origin.
func NewHandlers(jwt *auth.JWTManager, dir *directory.Directory, log *messagelog.Log, tracker *notify.Tracker, l *ledger.Ledger, allowedOrigins []string) *Handlers {
	return &Handlers{
		jwt:     jwt,
		dir:     dir,
		log:     log,
		tracker: tracker,
		ledger:  l,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handlers) SetupRoutes(r chi.Router) {
	r.Get("/groups/{id}", h.serveGroup)
	r.Get("/wallet", h.serveWallet)
}

// serveGroup streams the group's history followed by live messages. The
// viewer's unread mentions in the group are marked read on open.
func (h *Handlers) serveGroup(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	groupID := chi.URLParam(r, "id")
	slog.Info("Group feed requested", "user_id", claims.UserID, "group_id", groupID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	viewer, err := h.viewer(ctx, groupID, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	feed, err := h.log.Subscribe(ctx, groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer feed.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	metrics.WSConnected()
	defer metrics.WSDisconnected()

	if _, err := h.tracker.MarkRead(ctx, groupID, claims.UserID); err != nil {
		slog.Warn("Failed to mark mentions read", "user_id", claims.UserID, "group_id", groupID, "error", err)
	}

	out := make(chan *Frame, 1)
	go func() {
		defer close(out)

		history := make([]*rpc.Message, len(feed.History))
		for i, m := range feed.History {
			history[i] = rpc.MessageFromModel(m, viewer.DisplayName)
		}
		if !send(ctx, out, &Frame{Type: FrameHistory, Messages: history}) {
			return
		}
		for m := range feed.C {
			if !send(ctx, out, &Frame{Type: FrameMessage, Message: rpc.MessageFromModel(m, viewer.DisplayName)}) {
				return
			}
		}
	}()

	c := &client{conn: conn, kind: "group", id: groupID}
	go c.readPump(cancel)
	c.writePump(ctx, out)
}

// serveWallet streams the caller's balance, starting with the current value.
func (h *Handlers) serveWallet(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	slog.Info("Wallet feed requested", "user_id", claims.UserID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Only the newest entry matters; an unsent one is replaced.
	latest := make(chan *models.LedgerEntry, 1)
	sub, err := h.ledger.Watch(ctx, claims.UserID, func(e *models.LedgerEntry) {
		for {
			select {
			case latest <- e:
				return
			default:
			}
			select {
			case <-latest:
			default:
			}
		}
	})
	if err != nil {
		writeError(w, err)
		return
	}
	defer sub.Cancel()

	coins, err := h.ledger.Balance(ctx, claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	metrics.WSConnected()
	defer metrics.WSDisconnected()

	out := make(chan *Frame, 1)
	go func() {
		defer close(out)

		if !send(ctx, out, balanceFrame(coins, nil)) {
			return
		}
		for {
			select {
			case e := <-latest:
				if !send(ctx, out, balanceFrame(e.BalanceAfter, rpc.LedgerEntryFromModel(e))) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	c := &client{conn: conn, kind: "wallet", id: claims.UserID}
	go c.readPump(cancel)
	c.writePump(ctx, out)
}

// authenticate validates the bearer token from the Authorization header or
// the token query parameter, answering 401 when it is missing or invalid.
func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var err error
		token, err = auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return nil, false
		}
	}

	claims, err := h.jwt.Validate(token)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return nil, false
	}
	return claims, true
}

// viewer returns the caller's membership, or errs.ErrForbidden when the
// caller does not belong to an existing group.
func (h *Handlers) viewer(ctx context.Context, groupID, accountID string) (*models.Membership, error) {
	if _, err := h.dir.Group(ctx, groupID); err != nil {
		return nil, err
	}
	m, err := h.dir.Membership(ctx, groupID, accountID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrForbidden
	}
	return m, err
}

func send(ctx context.Context, out chan<- *Frame, f *Frame) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// writeError answers a failed handshake before the upgrade.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		slog.Error("Feed handshake failed", "error", err)
	}
	http.Error(w, http.StatusText(status), status)
}
