package call

import (
	"errors"
	"fmt"
	"slices"
)

// Status is where the single call session stands.
type Status string

const (
	Idle    Status = "idle"
	Dialing Status = "dialing"
	Ringing Status = "ringing"
	Active  Status = "active"
	// SaveOffer holds a force-stopped recording until the user keeps or
	// discards it. Inbound offers are refused meanwhile.
	SaveOffer Status = "save_offer"
)

var validTransitions = map[Status][]Status{
	Idle:      {Dialing, Ringing},
	Dialing:   {Active, Idle},
	Ringing:   {Active, Idle},
	Active:    {Idle, SaveOffer},
	SaveOffer: {Idle},
}

var (
	ErrInvalidTransition = errors.New("invalid call transition")
	ErrBusy              = errors.New("a call is already in progress")
	ErrUnreachable       = errors.New("peer is not reachable")
	ErrNoMedia           = errors.New("no media device")
	ErrNotRecordable     = errors.New("recording needs an active call with a remote stream")
	ErrAlreadyRecording  = errors.New("already recording")
	ErrNotRecording      = errors.New("not recording")
)

func checkTransition(from, to Status) error {
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// StatusChange is published on every transition.
type StatusChange struct {
	From Status `json:"from"`
	To   Status `json:"to"`
	Peer string `json:"peer,omitempty"`
}

// NoticeKind classifies a user-facing call outcome.
type NoticeKind string

const (
	NoticeIncoming     NoticeKind = "incoming"
	NoticeEnded        NoticeKind = "ended"
	NoticeRejected     NoticeKind = "rejected"
	NoticeUnavailable  NoticeKind = "unavailable"
	NoticeDisconnected NoticeKind = "disconnected"
	NoticeFailed       NoticeKind = "failed"
	// NoticeMissed reports an inbound offer that was refused automatically.
	NoticeMissed NoticeKind = "missed"
)

// Notice is published for every call outcome the user should see.
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	Peer   string     `json:"peer"`
	Reason string     `json:"reason,omitempty"`
}

// Snapshot is a read-only view of the machine.
type Snapshot struct {
	Status       Status `json:"status"`
	Peer         string `json:"peer,omitempty"`
	Incoming     bool   `json:"incoming"`
	RemoteStream bool   `json:"remoteStream"`
	Recording    bool   `json:"recording"`
	// MediaReady means a pre-call stream is held and idle.
	MediaReady bool `json:"mediaReady"`
	NoMedia    bool `json:"noMedia"`
}
