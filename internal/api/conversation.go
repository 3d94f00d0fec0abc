package api

import (
	"context"

	intsync "github.com/matheus3301/huddle/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func (s *ControlService) ListConversations(_ context.Context, _ *ListConversationsRequest) (*ListConversationsResponse, error) {
	self := s.engine.Self().ID
	selectedID := ""
	if sel := s.engine.Selected(); sel != nil {
		selectedID = sel.ID
	}
	convs := s.engine.Conversations()
	resp := &ListConversationsResponse{Conversations: make([]ConversationSummary, 0, len(convs))}
	for _, c := range convs {
		sum := ConversationSummary{
			ID:           c.ID,
			Peer:         c.Other(self),
			MessageCount: len(c.Messages),
			Unread:       c.UnreadCount(),
			Selected:     c.ID == selectedID,
		}
		if n := len(c.Messages); n > 0 {
			last := c.Messages[n-1]
			sum.LastMessage = &last
		}
		resp.Conversations = append(resp.Conversations, sum)
	}
	return resp, nil
}

func (s *ControlService) GetConversation(_ context.Context, req *GetConversationRequest) (*ConversationResponse, error) {
	if err := s.engine.Select(req.ConversationID); err != nil {
		return nil, toStatus(err)
	}
	c, _ := s.engine.Conversation(req.ConversationID)
	return &ConversationResponse{Conversation: c}, nil
}

func (s *ControlService) StartConversation(_ context.Context, req *StartConversationRequest) (*ConversationResponse, error) {
	if req.Peer.ID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "peer id is required")
	}
	if req.Peer.ID == s.engine.Self().ID {
		return nil, grpcstatus.Error(codes.InvalidArgument, "cannot start a conversation with yourself")
	}
	return &ConversationResponse{Conversation: s.engine.StartConversation(req.Peer)}, nil
}

func (s *ControlService) SendMessage(ctx context.Context, req *SendMessageRequest) (*SendMessageResponse, error) {
	if req.To.ID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "recipient id is required")
	}
	msg, err := s.engine.SendMessage(ctx, req.To, req.Content, req.Attachment)
	if err != nil {
		return nil, toStatus(err)
	}
	return &SendMessageResponse{Message: msg}, nil
}

func (s *ControlService) DeleteMessage(ctx context.Context, req *DeleteMessageRequest) (*DeleteMessageResponse, error) {
	scope := intsync.ScopeLocal
	if req.Everyone {
		scope = intsync.ScopeEveryone
	}
	if err := s.engine.DeleteMessage(ctx, req.ConversationID, req.MessageID, scope); err != nil {
		return nil, toStatus(err)
	}
	return &DeleteMessageResponse{}, nil
}

func (s *ControlService) MarkRead(_ context.Context, req *MarkReadRequest) (*MarkReadResponse, error) {
	n, err := s.engine.SetRead(req.ConversationID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &MarkReadResponse{Marked: n}, nil
}

func (s *ControlService) RemoveConversation(_ context.Context, req *RemoveConversationRequest) (*RemoveConversationResponse, error) {
	if err := s.engine.RemoveConversation(req.ConversationID); err != nil {
		return nil, toStatus(err)
	}
	return &RemoveConversationResponse{}, nil
}

