// Package api serves the daemon's gRPC control surface on a unix socket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/call"
	"github.com/matheus3301/huddle/internal/notify"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	intsync "github.com/matheus3301/huddle/internal/sync"
	"github.com/matheus3301/huddle/internal/typing"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ControlService implements ControlServer over the daemon's components.
type ControlService struct {
	profile   string
	startedAt time.Time

	engine    *intsync.Engine
	directory *presence.Directory
	notes     *notify.Aggregator
	calls     *call.Machine
	typing    *typing.Indicator
	machine   *status.Machine
	bus       *bus.Bus
	logger    *zap.Logger
}

var _ ControlServer = (*ControlService)(nil)

// NewControlService creates the control service.
func NewControlService(
	profile string,
	engine *intsync.Engine,
	dir *presence.Directory,
	notes *notify.Aggregator,
	calls *call.Machine,
	ind *typing.Indicator,
	machine *status.Machine,
	b *bus.Bus,
	logger *zap.Logger,
) *ControlService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlService{
		profile:   profile,
		startedAt: time.Now(),
		engine:    engine,
		directory: dir,
		notes:     notes,
		calls:     calls,
		typing:    ind,
		machine:   machine,
		bus:       b,
		logger:    logger,
	}
}

func (s *ControlService) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	return &GetStatusResponse{
		Profile:   s.profile,
		Self:      s.engine.Self(),
		Transport: string(s.machine.Current()),
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),

		DroppedEvents: s.bus.Dropped(),
	}, nil
}

func (s *ControlService) ListPresence(_ context.Context, _ *ListPresenceRequest) (*ListPresenceResponse, error) {
	return &ListPresenceResponse{Entries: s.directory.Entries()}, nil
}

func (s *ControlService) ListNotifications(_ context.Context, req *ListNotificationsRequest) (*ListNotificationsResponse, error) {
	unread := s.notes.Unread()
	resp := &ListNotificationsResponse{Notifications: unread, Unread: len(unread)}
	if !req.UnreadOnly {
		resp.Notifications = s.notes.All()
	}
	return resp, nil
}

func (s *ControlService) MarkNotificationsRead(_ context.Context, _ *MarkNotificationsReadRequest) (*MarkNotificationsReadResponse, error) {
	n := s.notes.MarkAllRead()
	s.bus.Emit(bus.NotificationsRead, n)
	return &MarkNotificationsReadResponse{Cleared: n}, nil
}

func (s *ControlService) Typing(_ context.Context, req *TypingRequest) (*TypingResponse, error) {
	if req.Stop {
		s.typing.Cancel()
		return &TypingResponse{}, nil
	}
	if req.PeerID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "peer id is required")
	}
	s.typing.Keystroke(req.PeerID)
	return &TypingResponse{}, nil
}

func (s *ControlService) WatchEvents(req *WatchEventsRequest, stream EventStream) error {
	ch, unsub := s.bus.Subscribe(req.Prefix, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			// Raw transport events stay internal unless asked for by name.
			if req.Prefix == "" && strings.HasPrefix(evt.Kind, "transport.") {
				continue
			}
			payload, err := json.Marshal(evt.Payload)
			if err != nil {
				s.logger.Warn("event payload not encodable", zap.String("kind", evt.Kind), zap.Error(err))
				payload = nil
			}
			if err := stream.Send(&Event{
				EventID:    uuid.NewString(),
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
				Payload:    payload,
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, store.ErrEmptyMessage):
		code = codes.InvalidArgument
	case errors.Is(err, call.ErrUnreachable), errors.Is(err, call.ErrNoMedia):
		code = codes.Unavailable
	case errors.Is(err, call.ErrInvalidTransition),
		errors.Is(err, call.ErrBusy),
		errors.Is(err, call.ErrNotRecordable),
		errors.Is(err, call.ErrAlreadyRecording),
		errors.Is(err, call.ErrNotRecording):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return grpcstatus.Error(code, err.Error())
}
