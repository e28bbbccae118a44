package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/zehem/internal/accounts"
	"github.com/mmynk/zehem/internal/directory"
	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/messagelog"
	"github.com/mmynk/zehem/internal/notify"
	"github.com/mmynk/zehem/internal/rpc"
)

// MessageService implements the Connect MessageService
type MessageService struct {
	log      *messagelog.Log
	tracker  *notify.Tracker
	dir      *directory.Directory
	accounts *accounts.Directory
}

// NewMessageService creates a new MessageService.
func NewMessageService(log *messagelog.Log, tracker *notify.Tracker, dir *directory.Directory, accts *accounts.Directory) *MessageService {
	return &MessageService{
		log:      log,
		tracker:  tracker,
		dir:      dir,
		accounts: accts,
	}
}

// SendMessage posts a message from the caller to a group.
func (s *MessageService) SendMessage(ctx context.Context, req *connect.Request[rpc.SendMessageRequest]) (*connect.Response[rpc.SendMessageResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("SendMessage request received", "user_id", userID, "group_id", req.Msg.GroupID)

	appended, err := s.log.Append(ctx, req.Msg.GroupID, userID, req.Msg.Body)
	if err != nil {
		slog.Error("SendMessage failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	mentioned := make([]string, len(appended.Mentions))
	for i, m := range appended.Mentions {
		mentioned[i] = m.AccountID
	}

	slog.Info("Message sent",
		"message_id", appended.Message.ID,
		"mentions", len(mentioned),
		"mention_all", appended.Message.MentionAll,
	)

	// The message is already committed; render without emphasis rather than
	// fail the send if the sender's name cannot be read back.
	viewer, err := s.viewerName(ctx, req.Msg.GroupID, userID)
	if err != nil {
		slog.Warn("Failed to resolve sender name", "group_id", req.Msg.GroupID, "user_id", userID, "error", err)
	}

	return connect.NewResponse(&rpc.SendMessageResponse{
		Message:   rpc.MessageFromModel(appended.Message, viewer),
		Mentioned: mentioned,
	}), nil
}

// ListMessages returns a group's history as seen by the caller. Only
// members may read it.
func (s *MessageService) ListMessages(ctx context.Context, req *connect.Request[rpc.ListMessagesRequest]) (*connect.Response[rpc.ListMessagesResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("ListMessages request received", "user_id", userID, "group_id", req.Msg.GroupID)

	viewer, err := s.viewerName(ctx, req.Msg.GroupID, userID)
	if err != nil {
		slog.Error("ListMessages failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	messages, err := s.log.History(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("ListMessages failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	out := make([]*rpc.Message, len(messages))
	for i, m := range messages {
		out[i] = rpc.MessageFromModel(m, viewer)
	}

	slog.Info("ListMessages successful", "count", len(out))

	return connect.NewResponse(&rpc.ListMessagesResponse{Messages: out}), nil
}

// MarkRead marks all of the caller's mentions in a group as read.
func (s *MessageService) MarkRead(ctx context.Context, req *connect.Request[rpc.MarkReadRequest]) (*connect.Response[rpc.MarkReadResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("MarkRead request received", "user_id", userID, "group_id", req.Msg.GroupID)

	n, err := s.tracker.MarkRead(ctx, req.Msg.GroupID, userID)
	if err != nil {
		slog.Error("MarkRead failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	return connect.NewResponse(&rpc.MarkReadResponse{Marked: n}), nil
}

// ListUnreadMentions returns the caller's unread mentions with per-group counts.
func (s *MessageService) ListUnreadMentions(ctx context.Context, req *connect.Request[rpc.ListUnreadMentionsRequest]) (*connect.Response[rpc.ListUnreadMentionsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("ListUnreadMentions request received", "user_id", userID)

	mentions, err := s.tracker.Unread(ctx, userID)
	if err != nil {
		slog.Error("ListUnreadMentions failed", "user_id", userID, "error", err)
		return nil, rpc.Error(err)
	}

	out := make([]*rpc.Mention, len(mentions))
	counts := make(map[string]int)
	for i, m := range mentions {
		out[i] = rpc.MentionFromModel(m)
		counts[m.GroupID]++
	}

	return connect.NewResponse(&rpc.ListUnreadMentionsResponse{
		Mentions:      out,
		CountsByGroup: counts,
	}), nil
}

// viewerName checks that accountID belongs to the group and returns the
// display name used to emphasize messages that mention it.
func (s *MessageService) viewerName(ctx context.Context, groupID, accountID string) (string, error) {
	if _, err := s.dir.Group(ctx, groupID); err != nil {
		return "", err
	}
	member, err := s.dir.Membership(ctx, groupID, accountID)
	if errors.Is(err, errs.ErrNotFound) {
		return "", fmt.Errorf("%s is not a member of group %s: %w", accountID, groupID, errs.ErrForbidden)
	}
	if err != nil {
		return "", err
	}
	if member.DisplayName != "" {
		return member.DisplayName, nil
	}
	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return "", err
	}
	return account.DisplayName, nil
}
