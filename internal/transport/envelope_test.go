package transport

import (
	"encoding/json"
	"testing"

	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundEvents(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind string
		check    func(t *testing.T, payload any)
	}{
		{
			name:     "presence snapshot",
			raw:      `{"type":"presence-snapshot","payload":[{"userId":"bob","peerHandle":"p-bob","availability":"available","location":{"lat":1.5,"lng":2}}]}`,
			wantKind: bus.TransportPresenceSnapshot,
			check: func(t *testing.T, payload any) {
				entries := payload.([]presence.Entry)
				require.Len(t, entries, 1)
				assert.Equal(t, presence.Available, entries[0].Availability)
				assert.Equal(t, 1.5, entries[0].Location.Lat)
			},
		},
		{
			name:     "new message with attachment",
			raw:      `{"type":"new-message","payload":{"id":"m1","conversationId":"c1","sender":{"id":"bob"},"recipient":{"id":"alice"},"content":"","attachment":"aGk=","unread":true}}`,
			wantKind: bus.TransportNewMessage,
			check: func(t *testing.T, payload any) {
				m := payload.(*store.Message)
				assert.Equal(t, "m1", m.ID)
				assert.Equal(t, []byte("hi"), m.Attachment)
			},
		},
		{
			name:     "deleted message",
			raw:      `{"type":"deleted-message","payload":{"conversationId":"c1","messageId":"m1"}}`,
			wantKind: bus.TransportDeletedMessage,
			check: func(t *testing.T, payload any) {
				assert.Equal(t, DeletedMessage{ConversationID: "c1", MessageID: "m1"}, payload)
			},
		},
		{
			name:     "call offer",
			raw:      `{"type":"call-offer","payload":{"from":"bob","to":"alice","peerHandle":"p-bob"}}`,
			wantKind: bus.TransportCallOffer,
			check: func(t *testing.T, payload any) {
				assert.Equal(t, CallOffer{From: "bob", To: "alice", PeerHandle: "p-bob"}, payload)
			},
		},
		{
			name:     "call ended",
			raw:      `{"type":"call-ended","payload":{"from":"bob"}}`,
			wantKind: bus.TransportCallEnded,
			check: func(t *testing.T, payload any) {
				assert.Equal(t, CallControl{From: "bob"}, payload)
			},
		},
		{
			name:     "restart has no payload",
			raw:      `{"type":"transport-restarted"}`,
			wantKind: bus.TransportRestarted,
			check: func(t *testing.T, payload any) {
				assert.Nil(t, payload)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env Envelope
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &env))
			kind, payload, err := Decode(env)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, kind)
			tt.check(t, payload)
		})
	}
}

func TestDecodeRejectsUnknownAndEmpty(t *testing.T) {
	_, _, err := Decode(Envelope{Type: "mystery"})
	assert.Error(t, err)

	_, _, err = Decode(Envelope{Type: TypeNewMessage})
	assert.Error(t, err, "a message event needs a payload")
}

func TestEncode(t *testing.T) {
	env, err := Encode(TypeTyping, Typing{SenderID: "alice", RecipientID: "bob", Typing: true})
	require.NoError(t, err)
	assert.Equal(t, TypeTyping, env.Type)
	assert.JSONEq(t, `{"senderId":"alice","recipientId":"bob","typing":true}`, string(env.Payload))

	env, err = Encode(TypeRestarted, nil)
	require.NoError(t, err)
	assert.Empty(t, env.Payload)
}
