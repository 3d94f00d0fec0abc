package store

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type blockingBackend struct {
	Backend
	release chan struct{}
}

func (b *blockingBackend) UpsertConversation(c *Conversation) error {
	<-b.release
	return b.Backend.UpsertConversation(c)
}

type failingBackend struct{ Backend }

func (failingBackend) AppendMessage(string, Message) error { return errors.New("disk full") }

func collect() (func(WriteResult), func() []WriteResult) {
	var mu sync.Mutex
	var results []WriteResult
	return func(r WriteResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}, func() []WriteResult {
			mu.Lock()
			defer mu.Unlock()
			return append([]WriteResult(nil), results...)
		}
}

func TestWriterAppliesInOrder(t *testing.T) {
	db := testDB(t)
	w := NewWriter(db, 8, nil)

	ack, results := collect()
	up := UpsertWrite(testConversation("c1", alice, bob))
	up.Ack = ack
	w.Enqueue(up)
	for _, id := range []string{"m1", "m2"} {
		wr := AppendWrite("c1", testMessage(t, id, "c1", id))
		wr.Ack = ack
		w.Enqueue(wr)
	}
	w.Close()

	got := results()
	if len(got) != 3 {
		t.Fatalf("got %d acks, want 3", len(got))
	}
	for _, r := range got {
		if r.Err != nil {
			t.Errorf("%s failed: %v", r.Op, r.Err)
		}
	}
	c, _ := db.GetConversation("c1")
	if len(c.Messages) != 2 || c.Messages[1].ID != "m2" {
		t.Errorf("stored messages = %+v, want m1,m2", c.Messages)
	}
}

func TestWriterEnqueueDoesNotWaitForIO(t *testing.T) {
	db := testDB(t)
	backend := &blockingBackend{Backend: db, release: make(chan struct{})}
	w := NewWriter(backend, 4, nil)

	ack, results := collect()
	wr := UpsertWrite(testConversation("c1", alice, bob))
	wr.Ack = ack

	returned := make(chan struct{})
	go func() {
		w.Enqueue(wr)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on the backend")
	}
	if len(results()) != 0 {
		t.Fatal("write acked before backend released")
	}

	close(backend.release)
	w.Close()
	if got := results(); len(got) != 1 || got[0].Err != nil {
		t.Errorf("results = %+v, want one successful ack", got)
	}
}

func TestWriterReportsFailure(t *testing.T) {
	w := NewWriter(failingBackend{}, 4, nil)
	ack, results := collect()
	wr := AppendWrite("c1", testMessage(t, "m1", "c1", "x"))
	wr.Ack = ack
	w.Enqueue(wr)
	w.Close()

	got := results()
	if len(got) != 1 || got[0].Err == nil {
		t.Fatalf("results = %+v, want one failed ack", got)
	}
}

func TestWriterClosedRejects(t *testing.T) {
	w := NewWriter(testDB(t), 1, nil)
	w.Close()

	ack, results := collect()
	wr := DeleteWrite("c1")
	wr.Ack = ack
	w.Enqueue(wr)

	got := results()
	if len(got) != 1 || !errors.Is(got[0].Err, ErrWriterClosed) {
		t.Errorf("results = %+v, want ErrWriterClosed", got)
	}
}

func TestUpsertWriteSnapshotsRecord(t *testing.T) {
	db := testDB(t)
	c := testConversation("c1", alice, bob)
	wr := UpsertWrite(c)
	c.Participants[1].Name = "changed after enqueue"

	if err := wr.apply(db); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetConversation("c1")
	if got.Participants[1].Name != "Bob" {
		t.Errorf("stored name = %q, want snapshot value Bob", got.Participants[1].Name)
	}
}
