package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client talks to a running daemon over its unix socket.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient dials the daemon's unix domain socket.
func NewClient(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	return invoke[GetStatusResponse](ctx, c, "GetStatus", &GetStatusRequest{})
}

func (c *Client) ListConversations(ctx context.Context) (*ListConversationsResponse, error) {
	return invoke[ListConversationsResponse](ctx, c, "ListConversations", &ListConversationsRequest{})
}

func (c *Client) GetConversation(ctx context.Context, req *GetConversationRequest) (*ConversationResponse, error) {
	return invoke[ConversationResponse](ctx, c, "GetConversation", req)
}

func (c *Client) StartConversation(ctx context.Context, req *StartConversationRequest) (*ConversationResponse, error) {
	return invoke[ConversationResponse](ctx, c, "StartConversation", req)
}

func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	return invoke[SendMessageResponse](ctx, c, "SendMessage", req)
}

func (c *Client) DeleteMessage(ctx context.Context, req *DeleteMessageRequest) (*DeleteMessageResponse, error) {
	return invoke[DeleteMessageResponse](ctx, c, "DeleteMessage", req)
}

func (c *Client) MarkRead(ctx context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	return invoke[MarkReadResponse](ctx, c, "MarkRead", req)
}

func (c *Client) RemoveConversation(ctx context.Context, req *RemoveConversationRequest) (*RemoveConversationResponse, error) {
	return invoke[RemoveConversationResponse](ctx, c, "RemoveConversation", req)
}

func (c *Client) ListPresence(ctx context.Context) (*ListPresenceResponse, error) {
	return invoke[ListPresenceResponse](ctx, c, "ListPresence", &ListPresenceRequest{})
}

func (c *Client) ListNotifications(ctx context.Context, req *ListNotificationsRequest) (*ListNotificationsResponse, error) {
	return invoke[ListNotificationsResponse](ctx, c, "ListNotifications", req)
}

func (c *Client) MarkNotificationsRead(ctx context.Context) (*MarkNotificationsReadResponse, error) {
	return invoke[MarkNotificationsReadResponse](ctx, c, "MarkNotificationsRead", &MarkNotificationsReadRequest{})
}

func (c *Client) Typing(ctx context.Context, req *TypingRequest) (*TypingResponse, error) {
	return invoke[TypingResponse](ctx, c, "Typing", req)
}

func (c *Client) CallStatus(ctx context.Context) (*CallResponse, error) {
	return invoke[CallResponse](ctx, c, "CallStatus", &CallStatusRequest{})
}

func (c *Client) Dial(ctx context.Context, peerID string) (*CallResponse, error) {
	return invoke[CallResponse](ctx, c, "Dial", &DialRequest{PeerID: peerID})
}

// CallAction invokes one of Accept, Reject, Hangup, StartRecording or StopRecording.
func (c *Client) CallAction(ctx context.Context, method string) (*CallResponse, error) {
	return invoke[CallResponse](ctx, c, method, &CallActionRequest{})
}

func (c *Client) ResolveRecording(ctx context.Context, save bool) (*CallResponse, error) {
	return invoke[CallResponse](ctx, c, "ResolveRecording", &ResolveRecordingRequest{Save: save})
}

// WatchEvents streams daemon events until ctx ends or the stream fails.
func (c *Client) WatchEvents(ctx context.Context, prefix string, fn func(*Event) error) error {
	stream, err := c.conn.NewStream(ctx, &ControlDesc.Streams[0], fullMethod("WatchEvents"))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&WatchEventsRequest{Prefix: prefix}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(Event)
		if err := stream.RecvMsg(evt); err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
