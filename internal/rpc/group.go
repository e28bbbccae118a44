package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// GroupServiceName is the fully-qualified name of the GroupService.
const GroupServiceName = "zehem.v1.GroupService"

const (
	GroupServiceCreateGroupProcedure  = "/zehem.v1.GroupService/CreateGroup"
	GroupServiceGetGroupProcedure     = "/zehem.v1.GroupService/GetGroup"
	GroupServiceListGroupsProcedure   = "/zehem.v1.GroupService/ListGroups"
	GroupServiceJoinGroupProcedure    = "/zehem.v1.GroupService/JoinGroup"
	GroupServiceAddMemberProcedure    = "/zehem.v1.GroupService/AddMember"
	GroupServiceSetRoleProcedure      = "/zehem.v1.GroupService/SetRole"
	GroupServiceRemoveMemberProcedure = "/zehem.v1.GroupService/RemoveMember"
	GroupServiceRenameGroupProcedure  = "/zehem.v1.GroupService/RenameGroup"
	GroupServiceDeleteGroupProcedure  = "/zehem.v1.GroupService/DeleteGroup"
	GroupServiceListMembersProcedure  = "/zehem.v1.GroupService/ListMembers"
)

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Visibility is "public" (default) or "private".
	Visibility string `json:"visibility,omitempty"`
}

type CreateGroupResponse struct {
	Group *Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupResponse struct {
	Group *Group `json:"group"`
}

type ListGroupsRequest struct {
	// Mine restricts the list to groups the caller belongs to.
	Mine bool `json:"mine,omitempty"`
}

type ListGroupsResponse struct {
	Groups []*Group `json:"groups"`
}

type JoinGroupRequest struct {
	GroupID string `json:"groupId"`
}

type JoinGroupResponse struct {
	Member *Member `json:"member"`
}

type AddMemberRequest struct {
	GroupID   string `json:"groupId"`
	AccountID string `json:"accountId"`
	// Role is "member" (default) or "admin".
	Role string `json:"role,omitempty"`
}

type AddMemberResponse struct {
	Member *Member `json:"member"`
}

type SetRoleRequest struct {
	GroupID   string `json:"groupId"`
	AccountID string `json:"accountId"`
	Role      string `json:"role"`
}

type SetRoleResponse struct {
	Member *Member `json:"member"`
}

type RemoveMemberRequest struct {
	GroupID   string `json:"groupId"`
	AccountID string `json:"accountId"`
}

type RemoveMemberResponse struct{}

type RenameGroupRequest struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

type RenameGroupResponse struct {
	Group *Group `json:"group"`
}

type DeleteGroupRequest struct {
	GroupID string `json:"groupId"`
}

type DeleteGroupResponse struct{}

type ListMembersRequest struct {
	GroupID string `json:"groupId"`
	// All lifts the display cap.
	All bool `json:"all,omitempty"`
}

type ListMembersResponse struct {
	Members []*Member `json:"members"`
	// Total is the member count before the display cap.
	Total    int `json:"total"`
	AdminCap int `json:"adminCap"`
}

// GroupServiceHandler is implemented by the group service.
type GroupServiceHandler interface {
	CreateGroup(context.Context, *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error)
	GetGroup(context.Context, *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error)
	ListGroups(context.Context, *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error)
	JoinGroup(context.Context, *connect.Request[JoinGroupRequest]) (*connect.Response[JoinGroupResponse], error)
	AddMember(context.Context, *connect.Request[AddMemberRequest]) (*connect.Response[AddMemberResponse], error)
	SetRole(context.Context, *connect.Request[SetRoleRequest]) (*connect.Response[SetRoleResponse], error)
	RemoveMember(context.Context, *connect.Request[RemoveMemberRequest]) (*connect.Response[RemoveMemberResponse], error)
	RenameGroup(context.Context, *connect.Request[RenameGroupRequest]) (*connect.Response[RenameGroupResponse], error)
	DeleteGroup(context.Context, *connect.Request[DeleteGroupRequest]) (*connect.Response[DeleteGroupResponse], error)
	ListMembers(context.Context, *connect.Request[ListMembersRequest]) (*connect.Response[ListMembersResponse], error)
}

// NewGroupServiceHandler builds an HTTP handler from the service
// implementation.
func NewGroupServiceHandler(svc GroupServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(GroupServiceCreateGroupProcedure, connect.NewUnaryHandler(GroupServiceCreateGroupProcedure, svc.CreateGroup, opts...))
	mux.Handle(GroupServiceGetGroupProcedure, connect.NewUnaryHandler(GroupServiceGetGroupProcedure, svc.GetGroup, opts...))
	mux.Handle(GroupServiceListGroupsProcedure, connect.NewUnaryHandler(GroupServiceListGroupsProcedure, svc.ListGroups, opts...))
	mux.Handle(GroupServiceJoinGroupProcedure, connect.NewUnaryHandler(GroupServiceJoinGroupProcedure, svc.JoinGroup, opts...))
	mux.Handle(GroupServiceAddMemberProcedure, connect.NewUnaryHandler(GroupServiceAddMemberProcedure, svc.AddMember, opts...))
	mux.Handle(GroupServiceSetRoleProcedure, connect.NewUnaryHandler(GroupServiceSetRoleProcedure, svc.SetRole, opts...))
	mux.Handle(GroupServiceRemoveMemberProcedure, connect.NewUnaryHandler(GroupServiceRemoveMemberProcedure, svc.RemoveMember, opts...))
	mux.Handle(GroupServiceRenameGroupProcedure, connect.NewUnaryHandler(GroupServiceRenameGroupProcedure, svc.RenameGroup, opts...))
	mux.Handle(GroupServiceDeleteGroupProcedure, connect.NewUnaryHandler(GroupServiceDeleteGroupProcedure, svc.DeleteGroup, opts...))
	mux.Handle(GroupServiceListMembersProcedure, connect.NewUnaryHandler(GroupServiceListMembersProcedure, svc.ListMembers, opts...))
	return "/" + GroupServiceName + "/", mux
}

// GroupServiceClient is a client for the GroupService.
type GroupServiceClient struct {
	createGroup  *connect.Client[CreateGroupRequest, CreateGroupResponse]
	getGroup     *connect.Client[GetGroupRequest, GetGroupResponse]
	listGroups   *connect.Client[ListGroupsRequest, ListGroupsResponse]
	joinGroup    *connect.Client[JoinGroupRequest, JoinGroupResponse]
	addMember    *connect.Client[AddMemberRequest, AddMemberResponse]
	setRole      *connect.Client[SetRoleRequest, SetRoleResponse]
	removeMember *connect.Client[RemoveMemberRequest, RemoveMemberResponse]
	renameGroup  *connect.Client[RenameGroupRequest, RenameGroupResponse]
	deleteGroup  *connect.Client[DeleteGroupRequest, DeleteGroupResponse]
	listMembers  *connect.Client[ListMembersRequest, ListMembersResponse]
}

// NewGroupServiceClient constructs a client for the GroupService at baseURL.
func NewGroupServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *GroupServiceClient {
	opts = clientOptions(opts)
	return &GroupServiceClient{
		createGroup:  connect.NewClient[CreateGroupRequest, CreateGroupResponse](httpClient, baseURL+GroupServiceCreateGroupProcedure, opts...),
		getGroup:     connect.NewClient[GetGroupRequest, GetGroupResponse](httpClient, baseURL+GroupServiceGetGroupProcedure, opts...),
		listGroups:   connect.NewClient[ListGroupsRequest, ListGroupsResponse](httpClient, baseURL+GroupServiceListGroupsProcedure, opts...),
		joinGroup:    connect.NewClient[JoinGroupRequest, JoinGroupResponse](httpClient, baseURL+GroupServiceJoinGroupProcedure, opts...),
		addMember:    connect.NewClient[AddMemberRequest, AddMemberResponse](httpClient, baseURL+GroupServiceAddMemberProcedure, opts...),
		setRole:      connect.NewClient[SetRoleRequest, SetRoleResponse](httpClient, baseURL+GroupServiceSetRoleProcedure, opts...),
		removeMember: connect.NewClient[RemoveMemberRequest, RemoveMemberResponse](httpClient, baseURL+GroupServiceRemoveMemberProcedure, opts...),
		renameGroup:  connect.NewClient[RenameGroupRequest, RenameGroupResponse](httpClient, baseURL+GroupServiceRenameGroupProcedure, opts...),
		deleteGroup:  connect.NewClient[DeleteGroupRequest, DeleteGroupResponse](httpClient, baseURL+GroupServiceDeleteGroupProcedure, opts...),
		listMembers:  connect.NewClient[ListMembersRequest, ListMembersResponse](httpClient, baseURL+GroupServiceListMembersProcedure, opts...),
	}
}

func (c *GroupServiceClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[CreateGroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GetGroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) ListGroups(ctx context.Context, req *connect.Request[ListGroupsRequest]) (*connect.Response[ListGroupsResponse], error) {
	return c.listGroups.CallUnary(ctx, req)
}

func (c *GroupServiceClient) JoinGroup(ctx context.Context, req *connect.Request[JoinGroupRequest]) (*connect.Response[JoinGroupResponse], error) {
	return c.joinGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) AddMember(ctx context.Context, req *connect.Request[AddMemberRequest]) (*connect.Response[AddMemberResponse], error) {
	return c.addMember.CallUnary(ctx, req)
}

func (c *GroupServiceClient) SetRole(ctx context.Context, req *connect.Request[SetRoleRequest]) (*connect.Response[SetRoleResponse], error) {
	return c.setRole.CallUnary(ctx, req)
}

func (c *GroupServiceClient) RemoveMember(ctx context.Context, req *connect.Request[RemoveMemberRequest]) (*connect.Response[RemoveMemberResponse], error) {
	return c.removeMember.CallUnary(ctx, req)
}

func (c *GroupServiceClient) RenameGroup(ctx context.Context, req *connect.Request[RenameGroupRequest]) (*connect.Response[RenameGroupResponse], error) {
	return c.renameGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) DeleteGroup(ctx context.Context, req *connect.Request[DeleteGroupRequest]) (*connect.Response[DeleteGroupResponse], error) {
	return c.deleteGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) ListMembers(ctx context.Context, req *connect.Request[ListMembersRequest]) (*connect.Response[ListMembersResponse], error) {
	return c.listMembers.CallUnary(ctx, req)
}
