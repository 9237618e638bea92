package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/marknest/internal/filetree"
)

// drain collects whatever is buffered on ch after a short settle delay.
func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe("u1")
	if b.ClientCount("u1") != 1 || b.ClientCount("u2") != 0 {
		t.Fatalf("unexpected per-user counts")
	}
	b.Unsubscribe(ch)
	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishRoutesByUser(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	mine := b.Subscribe("u1")
	defer b.Unsubscribe(mine)
	theirs := b.Subscribe("u2")
	defer b.Unsubscribe(theirs)

	b.Publish(Event{UserID: "u1", Type: "file.written", Data: map[string]string{"path": "a.md"}})
	b.Publish(Event{Type: "server.notice", Data: map[string]string{}})

	got := drain(mine)
	if len(got) != 2 || !strings.Contains(got[0], "event: file.written") || !strings.Contains(got[0], `"path":"a.md"`) {
		t.Errorf("u1 got %q", got)
	}
	other := drain(theirs)
	if len(other) != 1 || !strings.Contains(other[0], "server.notice") {
		t.Errorf("u2 got %q", other)
	}
}

func TestNotify_TreeThrottlePerUser(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch1 := b.Subscribe("u1")
	defer b.Unsubscribe(ch1)
	ch2 := b.Subscribe("u2")
	defer b.Unsubscribe(ch2)

	b.Notify("u1", filetree.Event{Type: filetree.EventFileWritten, Path: "a.md"})
	b.Notify("u1", filetree.Event{Type: filetree.EventFileDeleted, Path: "a.md"})
	b.Notify("u2", filetree.Event{Type: filetree.EventFolderCreated, Path: "x"})

	count := func(msgs []string) (tree, change int) {
		for _, m := range msgs {
			if strings.Contains(m, "event: "+TreeUpdated) {
				tree++
			} else {
				change++
			}
		}
		return
	}
	if tree, change := count(drain(ch1)); tree != 1 || change != 2 {
		t.Errorf("u1 tree=%d change=%d, want 1 and 2", tree, change)
	}
	if tree, change := count(drain(ch2)); tree != 1 || change != 1 {
		t.Errorf("u2 tree=%d change=%d, want 1 and 1", tree, change)
	}
}

// flushRecorder guards the body so the test can read it while the handler runs.
type flushRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Body.String()
}

func TestServeUser(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeUser(w, req, "u1")
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount("u1") != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Notify("u2", filetree.Event{Type: filetree.EventFileWritten, Path: "other.md"})
	b.Notify("u1", filetree.Event{Type: filetree.EventFileWritten, Path: "x.md"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.body()
	if !strings.Contains(body, "event: file.written") || !strings.Contains(body, "x.md") {
		t.Errorf("handler output missing event: %q", body)
	}
	if strings.Contains(body, "other.md") {
		t.Errorf("handler leaked another user's event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount("") != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("u1")
	defer b.Unsubscribe(ch)

	// Buffer holds 64; the rest must be dropped without blocking.
	for i := 0; i < 70; i++ {
		b.Publish(Event{UserID: "u1", Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("u1")
	if b.ClientCount("") != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount("") != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "file.written"})
	b.Notify("u1", filetree.Event{Type: filetree.EventFileWritten})
}

func TestClosePublishesPendingEventsFirst(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	mine := b.Subscribe("u1")
	theirs := b.Subscribe("u2")

	b.Publish(Event{Type: ServerShutdown, Data: map[string]string{}})
	b.Close()

	for name, ch := range map[string]chan []byte{"u1": mine, "u2": theirs} {
		var got []string
		for msg := range ch {
			got = append(got, string(msg))
		}
		if len(got) != 1 || !strings.HasPrefix(got[0], "event: server.shutdown\n") {
			t.Errorf("%s got %q", name, got)
		}
	}
}
