package service

import (
	"context"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/ledger"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/rpc"
)

// WalletService implements the Connect WalletService. Every operation acts
// on the caller's own balance.
type WalletService struct {
	ledger *ledger.Ledger
}

// NewWalletService creates a new WalletService.
func NewWalletService(l *ledger.Ledger) *WalletService {
	return &WalletService{ledger: l}
}

// GetBalance returns the caller's coin balance.
func (s *WalletService) GetBalance(ctx context.Context, req *connect.Request[rpc.GetBalanceRequest]) (*connect.Response[rpc.GetBalanceResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	coins, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		slog.Error("GetBalance failed", "user_id", userID, "error", err)
		return nil, rpc.Error(err)
	}

	return connect.NewResponse(&rpc.GetBalanceResponse{Coins: coins}), nil
}

// ListEntries returns the caller's ledger history, newest first.
func (s *WalletService) ListEntries(ctx context.Context, req *connect.Request[rpc.ListEntriesRequest]) (*connect.Response[rpc.ListEntriesResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("ListEntries request received", "user_id", userID, "limit", req.Msg.Limit)

	entries, err := s.ledger.Entries(ctx, userID, max(0, req.Msg.Limit))
	if err != nil {
		slog.Error("ListEntries failed", "user_id", userID, "error", err)
		return nil, rpc.Error(err)
	}

	out := make([]*rpc.LedgerEntry, len(entries))
	for i, e := range entries {
		out[i] = rpc.LedgerEntryFromModel(e)
	}
	return connect.NewResponse(&rpc.ListEntriesResponse{Entries: out}), nil
}

// activityActions are the rewards a client may report. Group rewards are
// applied by GroupService itself.
var activityActions = map[models.Action]bool{
	models.ActionPostCreated:    true,
	models.ActionPostDeleted:    true,
	models.ActionCommentCreated: true,
	models.ActionCommentDeleted: true,
}

// RecordActivity applies the reward for a post or comment action of the
// caller.
func (s *WalletService) RecordActivity(ctx context.Context, req *connect.Request[rpc.RecordActivityRequest]) (*connect.Response[rpc.RecordActivityResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("RecordActivity request received", "user_id", userID, "action", req.Msg.Action)

	action := models.Action(req.Msg.Action)
	if !activityActions[action] {
		err := fmt.Errorf("action %q cannot be recorded by clients: %w", req.Msg.Action, errs.ErrInvalidArgument)
		slog.Error("RecordActivity failed", "user_id", userID, "action", req.Msg.Action, "error", err)
		return nil, rpc.Error(err)
	}

	entry, err := s.ledger.Reward(ctx, userID, action)
	if err != nil {
		slog.Error("RecordActivity failed", "user_id", userID, "action", req.Msg.Action, "error", err)
		return nil, rpc.Error(err)
	}
	if entry.Clamped() {
		slog.Info("Debit clamped at zero",
			"user_id", userID,
			"requested", entry.Requested,
			"applied", entry.Applied,
		)
	}

	return connect.NewResponse(&rpc.RecordActivityResponse{
		Entry: rpc.LedgerEntryFromModel(entry),
	}), nil
}

// Exchange buys or sells a bundle of coins for the caller.
func (s *WalletService) Exchange(ctx context.Context, req *connect.Request[rpc.ExchangeRequest]) (*connect.Response[rpc.ExchangeResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Exchange request received", "user_id", userID, "side", req.Msg.Side)

	entry, err := s.ledger.Exchange(ctx, userID, ledger.Side(req.Msg.Side))
	if err != nil {
		slog.Error("Exchange failed", "user_id", userID, "side", req.Msg.Side, "error", err)
		return nil, rpc.Error(err)
	}

	return connect.NewResponse(&rpc.ExchangeResponse{
		Entry: rpc.LedgerEntryFromModel(entry),
	}), nil
}
