package realtime

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fletar/fletar-backend/internal/pkg/logger"
)

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubReconnectAndOrdering(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := UserChannel(uuid.New())

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventNotification, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventPostulacionStatus, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventNotification {
		t.Fatalf("first event: got=%s", got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventPostulacionStatus {
		t.Fatalf("second event: got=%s", got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventCargaStatus})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventCargaStatus {
		t.Fatalf("reconnect event: got=%s", got.Event)
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	channel := UserChannel(uuid.New())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	delivered := 0
	for i := 0; i < cap(client.Outbound)+5; i++ {
		delivered += hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventNotification})
	}
	if delivered != cap(client.Outbound) {
		t.Fatalf("expected %d delivered, got %d", cap(client.Outbound), delivered)
	}
}

func TestSSEHubIgnoresOtherChannels(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, UserChannel(client.UserID))

	if n := hub.Broadcast(SSEMessage{Channel: UserChannel(uuid.New()), Event: SSEEventNotification}); n != 0 {
		t.Fatalf("message leaked to another user's channel")
	}
	if n := hub.Broadcast(SSEMessage{Event: SSEEventNotification}); n != 0 {
		t.Fatalf("empty channel should not broadcast")
	}
}

func TestServeHTTPWritesEvents(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	userID := uuid.New()
	client := hub.NewSSEClient(userID)
	hub.AddChannel(client, UserChannel(userID))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeHTTP(w, r, client)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	hub.Broadcast(SSEMessage{Channel: UserChannel(userID), Event: SSEEventNotification, Data: map[string]any{"title": "hola"}})

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.HasPrefix(line, "event: ") {
			if strings.TrimSpace(strings.TrimPrefix(line, "event: ")) != string(SSEEventNotification) {
				t.Fatalf("unexpected event line %q", line)
			}
			data, _ := reader.ReadString('\n')
			if !strings.Contains(data, `"title":"hola"`) {
				t.Fatalf("unexpected data line %q", data)
			}
			return
		}
	}
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(ctx context.Context, msg SSEMessage) error {
	p.calls++
	return errors.New("redis down")
}

func TestEmitterFallsBackToLocalBroadcast(t *testing.T) {
	hub := NewSSEHub(logger.Nop())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, UserChannel(client.UserID))

	pub := &failingPublisher{}
	em := NewEmitter(logger.Nop(), hub, pub)
	if err := em.Emit(context.Background(), SSEMessage{Channel: UserChannel(client.UserID), Event: SSEEventNotification}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if pub.calls != 1 {
		t.Fatalf("expected publish attempt")
	}
	recvMessage(t, client.Outbound, time.Second)

	if err := em.Emit(context.Background(), SSEMessage{Event: SSEEventNotification}); err == nil {
		t.Fatalf("expected error for empty channel")
	}
}
