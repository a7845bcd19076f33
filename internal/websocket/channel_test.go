package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/domain/repositories"
)

// recorder collects channel callbacks from the pump goroutines
type recorder struct {
	mu       sync.Mutex
	states   []entities.ConnectionState
	messages chan []byte
	closed   chan error
}

func newRecorder() *recorder {
	return &recorder{
		messages: make(chan []byte, 16),
		closed:   make(chan error, 1),
	}
}

func (r *recorder) handler() repositories.ChannelHandler {
	return repositories.ChannelHandler{
		OnStateChange: func(s entities.ConnectionState) {
			r.mu.Lock()
			r.states = append(r.states, s)
			r.mu.Unlock()
		},
		OnMessage: func(p []byte) { r.messages <- p },
		OnClosed:  func(err error) { r.closed <- err },
	}
}

func (r *recorder) stateLog() []entities.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entities.ConnectionState(nil), r.states...)
}

func (r *recorder) waitClosed(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.closed:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the channel to close")
		return nil
	}
}

// testServer upgrades every request and hands the connection to serve
func testServer(t *testing.T, serve func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn, r)
	}))
	t.Cleanup(ts.Close)
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func echoServe(conn *websocket.Conn, r *http.Request) {
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(mt, msg); err != nil {
			return
		}
	}
}

func TestChannel_OpenSendClose(t *testing.T) {
	url := testServer(t, echoServe)
	rec := newRecorder()
	ch := NewChannel(zap.NewNop())

	if ch.State() != entities.ConnectionDisconnected {
		t.Fatalf("Expected a new channel to be disconnected, got %s", ch.State())
	}
	if err := ch.Send([]byte("x")); !errors.Is(err, entities.ErrNotConnected) {
		t.Fatalf("Expected ErrNotConnected before open, got %v", err)
	}

	if err := ch.Open(context.Background(), url, rec.handler()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if ch.State() != entities.ConnectionOpen {
		t.Fatalf("Expected open, got %s", ch.State())
	}
	if err := ch.Open(context.Background(), url, rec.handler()); err == nil {
		t.Error("Expected a second open to be rejected")
	}

	if err := ch.Send([]byte(`{"image":"x"}`)); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	select {
	case msg := <-rec.messages:
		if string(msg) != `{"image":"x"}` {
			t.Errorf("Unexpected echo %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the echo")
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rec.waitClosed(t); err != nil {
		t.Errorf("Expected a clean close, got %v", err)
	}
	if ch.State() != entities.ConnectionClosed {
		t.Errorf("Expected closed, got %s", ch.State())
	}
	if err := ch.Close(); err != nil {
		t.Errorf("Close should be idempotent, got %v", err)
	}
	if err := ch.Send([]byte("late")); !errors.Is(err, entities.ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after close, got %v", err)
	}

	want := []entities.ConnectionState{entities.ConnectionConnecting, entities.ConnectionOpen, entities.ConnectionClosed}
	got := rec.stateLog()
	if len(got) != len(want) {
		t.Fatalf("Expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("State %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestChannel_Reopen(t *testing.T) {
	url := testServer(t, echoServe)
	rec := newRecorder()
	ch := NewChannel(zap.NewNop())

	if err := ch.Open(context.Background(), url, rec.handler()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	ch.Close()
	rec.waitClosed(t)

	if err := ch.Open(context.Background(), url, rec.handler()); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if err := ch.Send([]byte("again")); err != nil {
		t.Fatalf("Send after reopen failed: %v", err)
	}
	select {
	case <-rec.messages:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the echo")
	}
	ch.Close()
}

func TestChannel_DialFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer ts.Close()

	rec := newRecorder()
	ch := NewChannel(zap.NewNop(), WithDialTimeout(time.Second))

	err := ch.Open(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"), rec.handler())
	if err == nil {
		t.Fatal("Expected the dial to fail")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("Expected the status code in the error, got %v", err)
	}
	if ch.State() != entities.ConnectionFailed {
		t.Errorf("Expected failed, got %s", ch.State())
	}
}

func TestChannel_PeerClosure(t *testing.T) {
	tests := []struct {
		name  string
		serve func(conn *websocket.Conn, r *http.Request)
		want  entities.ConnectionState
	}{
		{
			name: "normal close frame",
			serve: func(conn *websocket.Conn, r *http.Request) {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
				time.Sleep(50 * time.Millisecond)
			},
			want: entities.ConnectionClosed,
		},
		{
			name: "dropped connection",
			serve: func(conn *websocket.Conn, r *http.Request) {
				conn.UnderlyingConn().Close()
			},
			want: entities.ConnectionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := testServer(t, tt.serve)
			rec := newRecorder()
			ch := NewChannel(zap.NewNop())

			if err := ch.Open(context.Background(), url, rec.handler()); err != nil {
				t.Fatalf("Open failed: %v", err)
			}

			err := rec.waitClosed(t)
			if !errors.Is(err, entities.ErrTransportFailure) {
				t.Errorf("Expected a transport failure cause, got %v", err)
			}
			if ch.State() != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, ch.State())
			}
			if err := ch.Send([]byte("x")); !errors.Is(err, entities.ErrNotConnected) {
				t.Errorf("Expected ErrNotConnected, got %v", err)
			}
		})
	}
}

func TestChannel_BearerToken(t *testing.T) {
	got := make(chan string, 1)
	url := testServer(t, func(conn *websocket.Conn, r *http.Request) {
		got <- r.Header.Get("Authorization")
	})

	rec := newRecorder()
	ch := NewChannel(zap.NewNop(), WithBearerToken("abc.def"))
	if err := ch.Open(context.Background(), url, rec.handler()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ch.Close()

	select {
	case header := <-got:
		if header != "Bearer abc.def" {
			t.Errorf("Unexpected Authorization header %q", header)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the handshake")
	}
}
