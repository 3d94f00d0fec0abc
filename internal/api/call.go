package api

import (
	"context"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func (s *ControlService) callResponse(path string, err error) (*CallResponse, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return &CallResponse{Call: s.calls.Snapshot(), Path: path}, nil
}

func (s *ControlService) CallStatus(_ context.Context, _ *CallStatusRequest) (*CallResponse, error) {
	return s.callResponse("", nil)
}

func (s *ControlService) Dial(ctx context.Context, req *DialRequest) (*CallResponse, error) {
	if req.PeerID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "peer id is required")
	}
	return s.callResponse("", s.calls.Dial(ctx, req.PeerID))
}

func (s *ControlService) Accept(ctx context.Context, _ *CallActionRequest) (*CallResponse, error) {
	return s.callResponse("", s.calls.Accept(ctx))
}

func (s *ControlService) Reject(ctx context.Context, _ *CallActionRequest) (*CallResponse, error) {
	return s.callResponse("", s.calls.Reject(ctx))
}

func (s *ControlService) Hangup(ctx context.Context, _ *CallActionRequest) (*CallResponse, error) {
	return s.callResponse("", s.calls.Hangup(ctx))
}

func (s *ControlService) StartRecording(_ context.Context, _ *CallActionRequest) (*CallResponse, error) {
	return s.callResponse("", s.calls.StartRecording())
}

func (s *ControlService) StopRecording(ctx context.Context, _ *CallActionRequest) (*CallResponse, error) {
	return s.callResponse(s.calls.StopRecording(ctx))
}

func (s *ControlService) ResolveRecording(ctx context.Context, req *ResolveRecordingRequest) (*CallResponse, error) {
	return s.callResponse(s.calls.ResolveSaveOffer(ctx, req.Save))
}
