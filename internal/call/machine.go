// Package call drives the one peer-to-peer call a device may hold, from
// offer to teardown, and owns every media stream the call touches.
package call

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/media"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/transport"
	"go.uber.org/zap"
)

// Signaler emits call control events to a peer. *dispatch.Dispatcher implements it.
type Signaler interface {
	CallRequest(ctx context.Context, from, to, handle string) error
	CallAccepted(ctx context.Context, from, to string) error
	CallRejected(ctx context.Context, from, to string) error
	CallUnavailable(ctx context.Context, from, to string) error
	CallEnded(ctx context.Context, from, to string) error
}

// Directory answers reachability questions. *presence.Directory implements it.
type Directory interface {
	Lookup(userID string) (presence.Entry, bool)
	IsReachable(userID string) bool
}

// Connector opens media sessions with peers. *media.Loopback implements it.
type Connector interface {
	Connect(ctx context.Context, peerHandle string, local media.Stream) (media.Connection, error)
	Rearm(ctx context.Context) error
}

// RecorderFactory starts recording a stream.
type RecorderFactory func(media.Stream) (media.Recorder, error)

// ArtifactSink stores finished recordings.
type ArtifactSink interface {
	Save(ctx context.Context, a media.Artifact) (string, error)
}

// Deps are the collaborators of a Machine.
type Deps struct {
	Self        string
	Handle      string
	Signaler    Signaler
	Directory   Directory
	Source      media.Source
	Connector   Connector
	NewRecorder RecorderFactory
	Sink        ArtifactSink
}

type session struct {
	peer       string
	peerHandle string
	incoming   bool

	local    media.Stream
	remote   media.Stream
	conn     media.Connection
	recorder media.Recorder
	pending  *media.Artifact
}

// release stops every track the session holds and closes its connection.
func (s *session) release() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	media.StopAll(s.local)
	media.StopAll(s.remote)
	s.local, s.remote = nil, nil
}

// Machine is the only mutator of call state.
type Machine struct {
	deps   Deps
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	status  Status
	sess    *session
	probe   media.Stream
	noMedia bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMachine creates an idle machine.
func NewMachine(deps Deps, b *bus.Bus, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{deps: deps, bus: b, logger: logger, status: Idle}
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Snapshot returns a consistent view of the machine.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Status:     m.status,
		MediaReady: media.Live(m.probe),
		NoMedia:    m.noMedia,
	}
	if s := m.sess; s != nil {
		snap.Peer = s.peer
		snap.Incoming = s.incoming
		snap.RemoteStream = s.remote != nil
		snap.Recording = s.recorder != nil
	}
	return snap
}

func (m *Machine) transition(to Status) {
	if err := checkTransition(m.status, to); err != nil {
		// Callers check state first; reaching here is a bug.
		m.logger.Error("call transition rejected", zap.Error(err))
		return
	}
	change := StatusChange{From: m.status, To: to}
	if m.sess != nil {
		change.Peer = m.sess.peer
	}
	m.status = to
	m.logger.Info("call status changed", zap.String("from", string(change.From)), zap.String("to", string(to)), zap.String("peer", change.Peer))
	m.bus.Emit(bus.CallStatusChanged, change)
}

func (m *Machine) notice(kind NoticeKind, peer, reason string) {
	m.bus.Emit(bus.CallNotice, Notice{Kind: kind, Peer: peer, Reason: reason})
}

// localMedia hands the pre-call stream to the caller, acquiring one if
// none is held. After a failed acquisition only an explicit retry (a local
// dial or ProbeMedia) touches the device again.
func (m *Machine) localMedia(ctx context.Context, retry bool) (media.Stream, error) {
	if media.Live(m.probe) {
		s := m.probe
		m.probe = nil
		return s, nil
	}
	m.probe = nil
	if m.noMedia && !retry {
		return nil, ErrNoMedia
	}
	s, err := m.deps.Source.Acquire(ctx)
	if err != nil {
		m.noMedia = true
		return nil, fmt.Errorf("%w: %v", ErrNoMedia, err)
	}
	m.noMedia = false
	return s, nil
}

// ProbeMedia acquires the local stream ahead of any call. A failure marks
// the device missing, so inbound offers are refused until a later probe
// or dial succeeds.
func (m *Machine) ProbeMedia(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Idle {
		return ErrBusy
	}
	s, err := m.localMedia(ctx, true)
	if err != nil {
		m.logger.Warn("media probe failed", zap.Error(err))
		return err
	}
	m.probe = s
	return nil
}

// Dial offers a call to peerID.
func (m *Machine) Dial(ctx context.Context, peerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Idle {
		return fmt.Errorf("dial %s: %w", peerID, ErrBusy)
	}
	entry, ok := m.deps.Directory.Lookup(peerID)
	if !ok || entry.Availability != presence.Available {
		return fmt.Errorf("dial %s: %w", peerID, ErrUnreachable)
	}
	local, err := m.localMedia(ctx, true)
	if err != nil {
		return fmt.Errorf("dial %s: %w", peerID, err)
	}
	if err := m.deps.Signaler.CallRequest(ctx, m.deps.Self, peerID, m.deps.Handle); err != nil {
		media.StopAll(local)
		m.notice(NoticeFailed, peerID, err.Error())
		return fmt.Errorf("dial %s: %w", peerID, err)
	}
	m.sess = &session{peer: peerID, peerHandle: entry.PeerHandle, local: local}
	m.transition(Dialing)
	return nil
}

// HandleOffer processes an inbound offer. Anything but an idle machine with
// usable media answers "unavailable".
func (m *Machine) HandleOffer(ctx context.Context, from, peerHandle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reason := ""
	var local media.Stream
	if m.status != Idle {
		reason = "busy: " + string(m.status)
	} else if s, err := m.localMedia(ctx, false); err != nil {
		reason = err.Error()
	} else {
		local = s
	}
	if reason != "" {
		m.logger.Info("call offer refused", zap.String("from", from), zap.String("reason", reason))
		if err := m.deps.Signaler.CallUnavailable(ctx, m.deps.Self, from); err != nil {
			m.logger.Warn("unavailable reply failed", zap.String("to", from), zap.Error(err))
		}
		m.notice(NoticeMissed, from, reason)
		return
	}

	m.sess = &session{peer: from, peerHandle: peerHandle, incoming: true, local: local}
	m.transition(Ringing)
	m.notice(NoticeIncoming, from, "")
}

// Accept answers the ringing offer.
func (m *Machine) Accept(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Ringing {
		return fmt.Errorf("accept: %w: status %s", ErrInvalidTransition, m.status)
	}
	s := m.sess
	if !media.Live(s.local) {
		m.refuseLocked(ctx, NoticeFailed, ErrNoMedia.Error())
		return ErrNoMedia
	}
	conn, err := m.deps.Connector.Connect(ctx, s.peerHandle, s.local)
	if err != nil {
		m.refuseLocked(ctx, NoticeFailed, err.Error())
		return fmt.Errorf("accept: %w", err)
	}
	s.conn = conn
	if err := m.deps.Signaler.CallAccepted(ctx, m.deps.Self, s.peer); err != nil {
		m.abortLocked(NoticeFailed, err.Error())
		return fmt.Errorf("accept: %w", err)
	}
	m.transition(Active)
	go m.awaitRemote(conn)
	return nil
}

// refuseLocked tells the caller we cannot take the call, then aborts.
func (m *Machine) refuseLocked(ctx context.Context, kind NoticeKind, reason string) {
	if err := m.deps.Signaler.CallUnavailable(ctx, m.deps.Self, m.sess.peer); err != nil {
		m.logger.Warn("unavailable reply failed", zap.String("to", m.sess.peer), zap.Error(err))
	}
	m.abortLocked(kind, reason)
}

// Reject declines the ringing offer.
func (m *Machine) Reject(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Ringing {
		return fmt.Errorf("reject: %w: status %s", ErrInvalidTransition, m.status)
	}
	if err := m.deps.Signaler.CallRejected(ctx, m.deps.Self, m.sess.peer); err != nil {
		m.logger.Warn("reject reply failed", zap.String("to", m.sess.peer), zap.Error(err))
	}
	m.abortLocked(NoticeRejected, "declined")
	return nil
}

// Hangup ends whatever the local user is part of: an outgoing dial, a
// ringing offer or an active call.
func (m *Machine) Hangup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.status {
	case Dialing, Active:
		if err := m.deps.Signaler.CallEnded(ctx, m.deps.Self, m.sess.peer); err != nil {
			m.logger.Warn("end notice failed", zap.String("to", m.sess.peer), zap.Error(err))
		}
		m.endLocked(NoticeEnded, "hung up")
		return nil
	case Ringing:
		if err := m.deps.Signaler.CallRejected(ctx, m.deps.Self, m.sess.peer); err != nil {
			m.logger.Warn("reject reply failed", zap.String("to", m.sess.peer), zap.Error(err))
		}
		m.abortLocked(NoticeRejected, "declined")
		return nil
	default:
		return fmt.Errorf("hangup: %w: status %s", ErrInvalidTransition, m.status)
	}
}

// fromPeer reports whether a control event concerns the current session.
func (m *Machine) fromPeer(from string) bool {
	return m.sess != nil && m.sess.peer == from
}

// HandleAccepted starts media once the dialed peer accepts.
func (m *Machine) HandleAccepted(ctx context.Context, from string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Dialing || !m.fromPeer(from) {
		return
	}
	conn, err := m.deps.Connector.Connect(ctx, m.sess.peerHandle, m.sess.local)
	if err != nil {
		if serr := m.deps.Signaler.CallEnded(ctx, m.deps.Self, from); serr != nil {
			m.logger.Warn("end notice failed", zap.String("to", from), zap.Error(serr))
		}
		m.abortLocked(NoticeFailed, err.Error())
		return
	}
	m.sess.conn = conn
	m.transition(Active)
	go m.awaitRemote(conn)
}

// HandleRejected returns to idle after the dialed peer declines.
func (m *Machine) HandleRejected(_ context.Context, from string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == Dialing && m.fromPeer(from) {
		m.abortLocked(NoticeRejected, "")
	}
}

// HandleUnavailable returns to idle after the dialed peer cannot answer.
func (m *Machine) HandleUnavailable(_ context.Context, from string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == Dialing && m.fromPeer(from) {
		m.abortLocked(NoticeUnavailable, "")
	}
}

// HandleEnded tears down the session the peer left.
func (m *Machine) HandleEnded(_ context.Context, from string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fromPeer(from) {
		m.endLocked(NoticeEnded, "")
	}
}

// PeerPresenceChanged drops an active call whose peer left the roster.
func (m *Machine) PeerPresenceChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == Active && !m.deps.Directory.IsReachable(m.sess.peer) {
		m.endLocked(NoticeDisconnected, "peer unreachable")
	}
}

// Fail resets the session after a signaling or media failure.
func (m *Machine) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Warn("call failed", zap.String("status", string(m.status)), zap.Error(err))
	m.endLocked(NoticeFailed, err.Error())
}

// endLocked leaves dialing, ringing or active. A recording still running
// is stopped and kept for the save offer.
func (m *Machine) endLocked(kind NoticeKind, reason string) {
	switch m.status {
	case Dialing, Ringing:
		m.abortLocked(kind, reason)
	case Active:
		s := m.sess
		if s.recorder != nil {
			a, err := s.recorder.Stop()
			s.recorder = nil
			if err != nil {
				m.logger.Warn("recording lost", zap.Error(err))
			} else {
				s.pending = &a
			}
		}
		s.release()
		m.notice(kind, s.peer, reason)
		if s.pending != nil {
			m.transition(SaveOffer)
			return
		}
		m.transition(Idle)
		m.sess = nil
	}
}

// abortLocked releases the session and returns to idle.
func (m *Machine) abortLocked(kind NoticeKind, reason string) {
	s := m.sess
	s.release()
	m.notice(kind, s.peer, reason)
	m.transition(Idle)
	m.sess = nil
}

func (m *Machine) awaitRemote(conn media.Connection) {
	s, ok := <-conn.Remote()
	if !ok {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Active || m.sess.conn != conn || m.sess.remote != nil {
		media.StopAll(s)
		return
	}
	m.sess.remote = s
	m.logger.Debug("remote stream attached", zap.String("stream", s.ID()))
}

// AttachRemote hands the peer's stream to the active call. A stream that
// arrives for no active call is stopped at once.
func (m *Machine) AttachRemote(s media.Stream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Active {
		media.StopAll(s)
		return fmt.Errorf("attach remote: %w: status %s", ErrInvalidTransition, m.status)
	}
	if m.sess.remote != nil && m.sess.remote.ID() != s.ID() {
		media.StopAll(m.sess.remote)
	}
	m.sess.remote = s
	return nil
}

// StartRecording records the remote stream of the active call.
func (m *Machine) StartRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Active || m.sess.remote == nil {
		return ErrNotRecordable
	}
	if m.sess.recorder != nil {
		return ErrAlreadyRecording
	}
	r, err := m.deps.NewRecorder(m.sess.remote)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	m.sess.recorder = r
	return nil
}

// StopRecording stops recording during the call and stores the artifact.
func (m *Machine) StopRecording(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Active || m.sess.recorder == nil {
		return "", ErrNotRecording
	}
	a, err := m.sess.recorder.Stop()
	m.sess.recorder = nil
	if err != nil {
		return "", fmt.Errorf("stop recording: %w", err)
	}
	return m.deps.Sink.Save(ctx, a)
}

// ResolveSaveOffer keeps or discards the recording from the call that just
// ended and returns to idle. A failed save leaves the offer open.
func (m *Machine) ResolveSaveOffer(ctx context.Context, save bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != SaveOffer {
		return "", fmt.Errorf("resolve recording: %w: status %s", ErrInvalidTransition, m.status)
	}
	path := ""
	if save {
		p, err := m.deps.Sink.Save(ctx, *m.sess.pending)
		if err != nil {
			return "", err
		}
		path = p
	}
	m.transition(Idle)
	m.sess = nil
	return path, nil
}

// Rearm reconnects the media side after a transport restart.
func (m *Machine) Rearm(ctx context.Context) error {
	if err := m.deps.Connector.Rearm(ctx); err != nil {
		return fmt.Errorf("rearm media connector: %w", err)
	}
	return nil
}

// Start consumes call events and presence updates from the bus. Signaling
// has its own subscription so chat traffic cannot crowd it out.
func (m *Machine) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	signals, unsubSignals := m.bus.Subscribe("transport.call_", 256)
	roster, unsubRoster := m.bus.Subscribe(bus.PresenceUpdated, 16)
	restarts, unsubRestarts := m.bus.Subscribe(bus.TransportRestarted, 4)

	go func() {
		defer close(m.done)
		defer unsubSignals()
		defer unsubRoster()
		defer unsubRestarts()
		for {
			select {
			case evt := <-signals:
				m.handleEvent(ctx, evt)
			case evt := <-roster:
				m.handleEvent(ctx, evt)
			case evt := <-restarts:
				m.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the event loop and releases every stream the machine holds.
func (m *Machine) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil {
		if m.sess.recorder != nil {
			if _, err := m.sess.recorder.Stop(); err != nil {
				m.logger.Warn("recording dropped at shutdown", zap.Error(err))
			}
			m.sess.recorder = nil
		}
		m.sess.release()
	}
	media.StopAll(m.probe)
	m.probe = nil
}

func (m *Machine) handleEvent(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.TransportCallOffer:
		if o, ok := evt.Payload.(transport.CallOffer); ok && o.To == m.deps.Self {
			m.HandleOffer(ctx, o.From, o.PeerHandle)
		}
	case bus.TransportCallAccepted, bus.TransportCallRejected, bus.TransportCallUnavailable, bus.TransportCallEnded:
		c, ok := evt.Payload.(transport.CallControl)
		if !ok || c.To != m.deps.Self {
			return
		}
		switch evt.Kind {
		case bus.TransportCallAccepted:
			m.HandleAccepted(ctx, c.From)
		case bus.TransportCallRejected:
			m.HandleRejected(ctx, c.From)
		case bus.TransportCallUnavailable:
			m.HandleUnavailable(ctx, c.From)
		case bus.TransportCallEnded:
			m.HandleEnded(ctx, c.From)
		}
	case bus.PresenceUpdated:
		m.PeerPresenceChanged()
	case bus.TransportRestarted:
		if err := m.Rearm(ctx); err != nil {
			m.logger.Warn("media rearm failed", zap.Error(err))
		}
	}
}
