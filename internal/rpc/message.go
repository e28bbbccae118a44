package rpc

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

// MessageServiceName is the fully-qualified name of the MessageService.
const MessageServiceName = "zehem.v1.MessageService"

const (
	MessageServiceSendMessageProcedure        = "/zehem.v1.MessageService/SendMessage"
	MessageServiceListMessagesProcedure       = "/zehem.v1.MessageService/ListMessages"
	MessageServiceMarkReadProcedure           = "/zehem.v1.MessageService/MarkRead"
	MessageServiceListUnreadMentionsProcedure = "/zehem.v1.MessageService/ListUnreadMentions"
)

type SendMessageRequest struct {
	GroupID string `json:"groupId"`
	Body    string `json:"body"`
}

type SendMessageResponse struct {
	Message *Message `json:"message"`
	// Mentioned lists the account IDs notified by the message.
	Mentioned []string `json:"mentioned"`
}

type ListMessagesRequest struct {
	GroupID string `json:"groupId"`
}

type ListMessagesResponse struct {
	Messages []*Message `json:"messages"`
}

type MarkReadRequest struct {
	GroupID string `json:"groupId"`
}

type MarkReadResponse struct {
	// Marked is the number of mentions that changed from unread to read.
	Marked int64 `json:"marked"`
}

type ListUnreadMentionsRequest struct{}

type ListUnreadMentionsResponse struct {
	Mentions []*Mention `json:"mentions"`
	// CountsByGroup maps group IDs to unread mention counts.
	CountsByGroup map[string]int `json:"countsByGroup"`
}

// MessageServiceHandler is implemented by the message service.
type MessageServiceHandler interface {
	SendMessage(context.Context, *connect.Request[SendMessageRequest]) (*connect.Response[SendMessageResponse], error)
	ListMessages(context.Context, *connect.Request[ListMessagesRequest]) (*connect.Response[ListMessagesResponse], error)
	MarkRead(context.Context, *connect.Request[MarkReadRequest]) (*connect.Response[MarkReadResponse], error)
	ListUnreadMentions(context.Context, *connect.Request[ListUnreadMentionsRequest]) (*connect.Response[ListUnreadMentionsResponse], error)
}

// NewMessageServiceHandler builds an HTTP handler from the service
// implementation.
func NewMessageServiceHandler(svc MessageServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(MessageServiceSendMessageProcedure, connect.NewUnaryHandler(MessageServiceSendMessageProcedure, svc.SendMessage, opts...))
	mux.Handle(MessageServiceListMessagesProcedure, connect.NewUnaryHandler(MessageServiceListMessagesProcedure, svc.ListMessages, opts...))
	mux.Handle(MessageServiceMarkReadProcedure, connect.NewUnaryHandler(MessageServiceMarkReadProcedure, svc.MarkRead, opts...))
	mux.Handle(MessageServiceListUnreadMentionsProcedure, connect.NewUnaryHandler(MessageServiceListUnreadMentionsProcedure, svc.ListUnreadMentions, opts...))
	return "/" + MessageServiceName + "/", mux
}

// MessageServiceClient is a client for the MessageService.
type MessageServiceClient struct {
	sendMessage        *connect.Client[SendMessageRequest, SendMessageResponse]
	listMessages       *connect.Client[ListMessagesRequest, ListMessagesResponse]
	markRead           *connect.Client[MarkReadRequest, MarkReadResponse]
	listUnreadMentions *connect.Client[ListUnreadMentionsRequest, ListUnreadMentionsResponse]
}

// NewMessageServiceClient constructs a client for the MessageService at baseURL.
func NewMessageServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *MessageServiceClient {
	opts = clientOptions(opts)
	return &MessageServiceClient{
		sendMessage:        connect.NewClient[SendMessageRequest, SendMessageResponse](httpClient, baseURL+MessageServiceSendMessageProcedure, opts...),
		listMessages:       connect.NewClient[ListMessagesRequest, ListMessagesResponse](httpClient, baseURL+MessageServiceListMessagesProcedure, opts...),
		markRead:           connect.NewClient[MarkReadRequest, MarkReadResponse](httpClient, baseURL+MessageServiceMarkReadProcedure, opts...),
		listUnreadMentions: connect.NewClient[ListUnreadMentionsRequest, ListUnreadMentionsResponse](httpClient, baseURL+MessageServiceListUnreadMentionsProcedure, opts...),
	}
}

func (c *MessageServiceClient) SendMessage(ctx context.Context, req *connect.Request[SendMessageRequest]) (*connect.Response[SendMessageResponse], error) {
	return c.sendMessage.CallUnary(ctx, req)
}

func (c *MessageServiceClient) ListMessages(ctx context.Context, req *connect.Request[ListMessagesRequest]) (*connect.Response[ListMessagesResponse], error) {
	return c.listMessages.CallUnary(ctx, req)
}

func (c *MessageServiceClient) MarkRead(ctx context.Context, req *connect.Request[MarkReadRequest]) (*connect.Response[MarkReadResponse], error) {
	return c.markRead.CallUnary(ctx, req)
}

func (c *MessageServiceClient) ListUnreadMentions(ctx context.Context, req *connect.Request[ListUnreadMentionsRequest]) (*connect.Response[ListUnreadMentionsResponse], error) {
	return c.listUnreadMentions.CallUnary(ctx, req)
}
