package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/zehem/internal/directory"
	"github.com/mmynk/zehem/internal/ledger"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/rpc"
)

// GroupService implements the Connect GroupService
type GroupService struct {
	dir    *directory.Directory
	ledger *ledger.Ledger
}

// NewGroupService creates a new GroupService. Creating and deleting groups
// rewards the owner through l.
func NewGroupService(dir *directory.Directory, l *ledger.Ledger) *GroupService {
	return &GroupService{dir: dir, ledger: l}
}

// CreateGroup creates a new group owned by the caller.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[rpc.CreateGroupRequest]) (*connect.Response[rpc.CreateGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("CreateGroup request received",
		"user_id", userID,
		"name", req.Msg.Name,
		"visibility", req.Msg.Visibility,
	)

	group, err := s.dir.CreateGroup(ctx, userID, req.Msg.Name, req.Msg.Description, models.Visibility(req.Msg.Visibility))
	if err != nil {
		slog.Error("CreateGroup failed", "error", err)
		return nil, rpc.Error(err)
	}
	slog.Info("Group created", "group_id", group.ID)

	s.reward(ctx, userID, models.ActionGroupCreated)

	return connect.NewResponse(&rpc.CreateGroupResponse{
		Group: rpc.GroupFromModel(group),
	}), nil
}

// GetGroup retrieves a group by ID.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[rpc.GetGroupRequest]) (*connect.Response[rpc.GetGroupResponse], error) {
	slog.Info("GetGroup request received", "group_id", req.Msg.GroupID)

	group, err := s.dir.Group(ctx, req.Msg.GroupID)
	if err != nil {
		slog.Error("GetGroup failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	return connect.NewResponse(&rpc.GetGroupResponse{
		Group: rpc.GroupFromModel(group),
	}), nil
}

// ListGroups retrieves all groups, or only the caller's.
func (s *GroupService) ListGroups(ctx context.Context, req *connect.Request[rpc.ListGroupsRequest]) (*connect.Response[rpc.ListGroupsResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("ListGroups request received", "user_id", userID, "mine", req.Msg.Mine)

	memberID := ""
	if req.Msg.Mine {
		memberID = userID
	}
	groups, err := s.dir.ListGroups(ctx, memberID)
	if err != nil {
		slog.Error("ListGroups failed", "error", err)
		return nil, rpc.Error(err)
	}

	out := make([]*rpc.Group, len(groups))
	for i, g := range groups {
		out[i] = rpc.GroupFromModel(g)
	}

	slog.Info("ListGroups successful", "count", len(groups))

	return connect.NewResponse(&rpc.ListGroupsResponse{Groups: out}), nil
}

// JoinGroup adds the caller to a public group.
func (s *GroupService) JoinGroup(ctx context.Context, req *connect.Request[rpc.JoinGroupRequest]) (*connect.Response[rpc.JoinGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("JoinGroup request received", "user_id", userID, "group_id", req.Msg.GroupID)

	member, err := s.dir.Join(ctx, req.Msg.GroupID, userID)
	if err != nil {
		slog.Error("JoinGroup failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	return connect.NewResponse(&rpc.JoinGroupResponse{
		Member: rpc.MemberFromModel(member),
	}), nil
}

// AddMember invites an account into a group on behalf of the caller.
func (s *GroupService) AddMember(ctx context.Context, req *connect.Request[rpc.AddMemberRequest]) (*connect.Response[rpc.AddMemberResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("AddMember request received",
		"user_id", userID,
		"group_id", req.Msg.GroupID,
		"account_id", req.Msg.AccountID,
		"role", req.Msg.Role,
	)

	member, err := s.dir.AddMember(ctx, userID, req.Msg.GroupID, req.Msg.AccountID, models.Role(req.Msg.Role))
	if err != nil {
		slog.Error("AddMember failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	return connect.NewResponse(&rpc.AddMemberResponse{
		Member: rpc.MemberFromModel(member),
	}), nil
}

// SetRole promotes or demotes a member. Only the owner may call it.
func (s *GroupService) SetRole(ctx context.Context, req *connect.Request[rpc.SetRoleRequest]) (*connect.Response[rpc.SetRoleResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("SetRole request received",
		"user_id", userID,
		"group_id", req.Msg.GroupID,
		"account_id", req.Msg.AccountID,
		"role", req.Msg.Role,
	)

	member, err := s.dir.SetRole(ctx, userID, req.Msg.GroupID, req.Msg.AccountID, models.Role(req.Msg.Role))
	if err != nil {
		slog.Error("SetRole failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	slog.Info("Role changed", "group_id", req.Msg.GroupID, "account_id", member.AccountID, "role", member.Role)

	return connect.NewResponse(&rpc.SetRoleResponse{
		Member: rpc.MemberFromModel(member),
	}), nil
}

// RemoveMember removes a member, or lets the caller leave.
func (s *GroupService) RemoveMember(ctx context.Context, req *connect.Request[rpc.RemoveMemberRequest]) (*connect.Response[rpc.RemoveMemberResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("RemoveMember request received",
		"user_id", userID,
		"group_id", req.Msg.GroupID,
		"account_id", req.Msg.AccountID,
	)

	accountID := req.Msg.AccountID
	if accountID == "" {
		accountID = userID
	}
	if err := s.dir.RemoveMember(ctx, userID, req.Msg.GroupID, accountID); err != nil {
		slog.Error("RemoveMember failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	return connect.NewResponse(&rpc.RemoveMemberResponse{}), nil
}

// RenameGroup changes a group's name.
func (s *GroupService) RenameGroup(ctx context.Context, req *connect.Request[rpc.RenameGroupRequest]) (*connect.Response[rpc.RenameGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("RenameGroup request received", "user_id", userID, "group_id", req.Msg.GroupID, "name", req.Msg.Name)

	group, err := s.dir.Rename(ctx, userID, req.Msg.GroupID, req.Msg.Name)
	if err != nil {
		slog.Error("RenameGroup failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	return connect.NewResponse(&rpc.RenameGroupResponse{
		Group: rpc.GroupFromModel(group),
	}), nil
}

// DeleteGroup deletes a group and everything in it.
func (s *GroupService) DeleteGroup(ctx context.Context, req *connect.Request[rpc.DeleteGroupRequest]) (*connect.Response[rpc.DeleteGroupResponse], error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("DeleteGroup request received", "user_id", userID, "group_id", req.Msg.GroupID)

	if err := s.dir.DeleteGroup(ctx, userID, req.Msg.GroupID); err != nil {
		slog.Error("DeleteGroup failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}
	slog.Info("Group deleted", "group_id", req.Msg.GroupID)

	s.reward(ctx, userID, models.ActionGroupDeleted)

	return connect.NewResponse(&rpc.DeleteGroupResponse{}), nil
}

// ListMembers lists a group's members, capped at MemberDisplayCap unless
// all are requested.
func (s *GroupService) ListMembers(ctx context.Context, req *connect.Request[rpc.ListMembersRequest]) (*connect.Response[rpc.ListMembersResponse], error) {
	slog.Info("ListMembers request received", "group_id", req.Msg.GroupID, "all", req.Msg.All)

	members, err := s.dir.Members(ctx, req.Msg.GroupID, 0)
	if err != nil {
		slog.Error("ListMembers failed", "group_id", req.Msg.GroupID, "error", err)
		return nil, rpc.Error(err)
	}

	total := len(members)
	if !req.Msg.All && total > MemberDisplayCap {
		members = members[:MemberDisplayCap]
	}
	out := make([]*rpc.Member, len(members))
	for i, m := range members {
		out[i] = rpc.MemberFromModel(m)
	}

	return connect.NewResponse(&rpc.ListMembersResponse{
		Members:  out,
		Total:    total,
		AdminCap: s.dir.AdminCap(),
	}), nil
}

// reward applies a group reward after the group change has committed. The
// group change stands even when the reward fails, so failures are logged
// rather than returned.
func (s *GroupService) reward(ctx context.Context, userID string, action models.Action) {
	entry, err := s.ledger.Reward(ctx, userID, action)
	if err != nil {
		slog.Warn("Failed to apply group reward", "user_id", userID, "action", action, "error", err)
		return
	}
	slog.Info("Group reward applied", "user_id", userID, "action", action, "balance", entry.BalanceAfter)
}
