package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "huddle.v1.Control"

// ControlServer is the daemon's control surface.
type ControlServer interface {
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)

	ListConversations(context.Context, *ListConversationsRequest) (*ListConversationsResponse, error)
	GetConversation(context.Context, *GetConversationRequest) (*ConversationResponse, error)
	StartConversation(context.Context, *StartConversationRequest) (*ConversationResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*SendMessageResponse, error)
	DeleteMessage(context.Context, *DeleteMessageRequest) (*DeleteMessageResponse, error)
	MarkRead(context.Context, *MarkReadRequest) (*MarkReadResponse, error)
	RemoveConversation(context.Context, *RemoveConversationRequest) (*RemoveConversationResponse, error)

	ListPresence(context.Context, *ListPresenceRequest) (*ListPresenceResponse, error)
	ListNotifications(context.Context, *ListNotificationsRequest) (*ListNotificationsResponse, error)
	MarkNotificationsRead(context.Context, *MarkNotificationsReadRequest) (*MarkNotificationsReadResponse, error)
	Typing(context.Context, *TypingRequest) (*TypingResponse, error)

	CallStatus(context.Context, *CallStatusRequest) (*CallResponse, error)
	Dial(context.Context, *DialRequest) (*CallResponse, error)
	Accept(context.Context, *CallActionRequest) (*CallResponse, error)
	Reject(context.Context, *CallActionRequest) (*CallResponse, error)
	Hangup(context.Context, *CallActionRequest) (*CallResponse, error)
	StartRecording(context.Context, *CallActionRequest) (*CallResponse, error)
	StopRecording(context.Context, *CallActionRequest) (*CallResponse, error)
	ResolveRecording(context.Context, *ResolveRecordingRequest) (*CallResponse, error)

	WatchEvents(*WatchEventsRequest, EventStream) error
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*Event) error
	Context() context.Context
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(e *Event) error {
	return s.ServerStream.SendMsg(e)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds the method descriptor for one request/response call.
func unary[Req, Resp any](name string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(*Req))
			})
		},
	}
}

// ControlDesc describes the Control service for grpc registration.
var ControlDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetStatus", ControlServer.GetStatus),
		unary("ListConversations", ControlServer.ListConversations),
		unary("GetConversation", ControlServer.GetConversation),
		unary("StartConversation", ControlServer.StartConversation),
		unary("SendMessage", ControlServer.SendMessage),
		unary("DeleteMessage", ControlServer.DeleteMessage),
		unary("MarkRead", ControlServer.MarkRead),
		unary("RemoveConversation", ControlServer.RemoveConversation),
		unary("ListPresence", ControlServer.ListPresence),
		unary("ListNotifications", ControlServer.ListNotifications),
		unary("MarkNotificationsRead", ControlServer.MarkNotificationsRead),
		unary("Typing", ControlServer.Typing),
		unary("CallStatus", ControlServer.CallStatus),
		unary("Dial", ControlServer.Dial),
		unary("Accept", ControlServer.Accept),
		unary("Reject", ControlServer.Reject),
		unary("Hangup", ControlServer.Hangup),
		unary("StartRecording", ControlServer.StartRecording),
		unary("StopRecording", ControlServer.StopRecording),
		unary("ResolveRecording", ControlServer.ResolveRecording),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchEvents",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchEventsRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(ControlServer).WatchEvents(in, &eventStream{stream})
			},
		},
	},
	Metadata: "huddle/v1/control",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlDesc, srv)
}

// NewGRPCServer returns a grpc server speaking the control codec.
func NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	return grpc.NewServer(append([]grpc.ServerOption{grpc.ForceServerCodec(jsonCodec{})}, opts...)...)
}
