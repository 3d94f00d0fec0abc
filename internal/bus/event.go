package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Inbound kinds are published by the transport as it decodes the event stream.
const (
	TransportPresenceSnapshot = "transport.presence_snapshot"
	TransportTyping           = "transport.typing"
	TransportNewMessage       = "transport.new_message"
	TransportDeletedMessage   = "transport.deleted_message"
	TransportNewNotification  = "transport.new_notification"
	TransportCallOffer        = "transport.call_offer"
	TransportCallAccepted     = "transport.call_accepted"
	TransportCallEnded        = "transport.call_ended"
	TransportCallRejected     = "transport.call_rejected"
	TransportCallUnavailable  = "transport.call_unavailable"
	TransportRestarted        = "transport.restarted"
	TransportDisconnected     = "transport.disconnected"
)

// Local kinds are derived state changes observed by the control API.
const (
	ConversationUpdated     = "conversation.updated"
	ConversationSelected    = "conversation.selected"
	ConversationRemoved     = "conversation.removed"
	PresenceUpdated         = "presence.updated"
	TypingChanged           = "typing.changed"
	NotificationAdded       = "notification.added"
	NotificationsRead       = "notification.read_all"
	CallStatusChanged       = "call.status_changed"
	CallNotice              = "call.notice"
	StoreWriteFailed        = "store.write_failed"
	ConnectionStatusChanged = "connection.status_changed"
)
