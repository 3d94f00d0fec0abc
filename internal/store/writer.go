package store

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrWriterClosed = errors.New("store writer closed")
	ErrQueueFull    = errors.New("store write queue full")
)

// Backend is the durable side of the cache. *DB implements it.
type Backend interface {
	UpsertConversation(c *Conversation) error
	AppendMessage(conversationID string, m Message) error
	UpdateMessages(conversationID string, msgs []Message) error
	DeleteConversation(id string) error
}

// WriteResult is delivered to a write's Ack once it has been applied or dropped.
type WriteResult struct {
	Op             string
	ConversationID string
	Err            error
	Duration       time.Duration
}

// Write is one queued mutation of the durable store.
type Write struct {
	Op             string
	ConversationID string
	Ack            func(WriteResult)

	apply func(Backend) error
}

// UpsertWrite persists a whole conversation record. The record is copied so
// later in-memory mutation does not race the worker.
func UpsertWrite(c *Conversation) Write {
	snapshot := c.Clone()
	return Write{Op: "upsert", ConversationID: c.ID, apply: func(b Backend) error {
		return b.UpsertConversation(snapshot)
	}}
}

// AppendWrite appends one message to a stored conversation.
func AppendWrite(conversationID string, m Message) Write {
	return Write{Op: "append", ConversationID: conversationID, apply: func(b Backend) error {
		return b.AppendMessage(conversationID, m)
	}}
}

// MessagesWrite replaces a stored message list.
func MessagesWrite(conversationID string, msgs []Message) Write {
	snapshot := append([]Message(nil), msgs...)
	return Write{Op: "update_messages", ConversationID: conversationID, apply: func(b Backend) error {
		return b.UpdateMessages(conversationID, snapshot)
	}}
}

// DeleteWrite removes a stored conversation.
func DeleteWrite(conversationID string) Write {
	return Write{Op: "delete", ConversationID: conversationID, apply: func(b Backend) error {
		return b.DeleteConversation(conversationID)
	}}
}

// Writer applies writes on a single background goroutine in submission order.
// Enqueue never waits for I/O: the in-memory view is authoritative and the
// durable copy catches up, or diverges if a write fails.
type Writer struct {
	backend Backend
	logger  *zap.Logger
	queue   chan Write
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewWriter creates a writer with the given queue capacity and starts its worker.
func NewWriter(backend Backend, queueSize int, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &Writer{
		backend: backend,
		logger:  logger,
		queue:   make(chan Write, queueSize),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// Enqueue schedules w. A full queue or a closed writer acks immediately with an error.
func (w *Writer) Enqueue(wr Write) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.finish(wr, ErrWriterClosed, 0)
		return
	}
	select {
	case w.queue <- wr:
		w.mu.Unlock()
	default:
		w.mu.Unlock()
		w.finish(wr, ErrQueueFull, 0)
	}
}

// Close stops accepting writes and waits for queued ones to drain.
func (w *Writer) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) loop() {
	defer close(w.done)
	for wr := range w.queue {
		start := time.Now()
		err := wr.apply(w.backend)
		w.finish(wr, err, time.Since(start))
	}
}

func (w *Writer) finish(wr Write, err error, took time.Duration) {
	if err != nil {
		w.logger.Warn("store write failed",
			zap.String("op", wr.Op),
			zap.String("conversation_id", wr.ConversationID),
			zap.Error(err))
	}
	if wr.Ack != nil {
		wr.Ack(WriteResult{Op: wr.Op, ConversationID: wr.ConversationID, Err: err, Duration: took})
	}
}
