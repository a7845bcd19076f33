package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/segstream/adapters/render"
	"github.com/satriahrh/segstream/adapters/segmenter"
	"github.com/satriahrh/segstream/domain/entities"
	"github.com/satriahrh/segstream/internal/api"
	"github.com/satriahrh/segstream/internal/config"
	"github.com/satriahrh/segstream/internal/inference"
	"github.com/satriahrh/segstream/internal/websocket"
)

func startInference(t *testing.T) string {
	t.Helper()

	processor := segmenter.NewMockSegmenter(segmenter.DefaultOptions(), zap.NewNop())
	srv := inference.NewServer(config.ServerConfig{}, processor, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go srv.RunHub(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + api.FramePath
}

func newService(t *testing.T, endpoint string) (*StreamService, string) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := config.Default()
	cfg.Endpoint = endpoint
	cfg.RequestTimeout = 5 * time.Second
	cfg.Capture.Width = 32
	cfg.Capture.Height = 24

	source, err := NewCaptureSource(cfg.Capture, logger)
	if err != nil {
		t.Fatalf("Failed to create capture source: %v", err)
	}
	output := filepath.Join(t.TempDir(), "overlay.png")
	sink, err := render.NewFileSink(output, "", false, logger)
	if err != nil {
		t.Fatalf("Failed to create sink: %v", err)
	}

	channel := websocket.NewChannel(logger, websocket.WithDialTimeout(time.Second))
	return NewStreamService(cfg, channel, source, sink, logger), output
}

func TestStreamService_StreamFrames(t *testing.T) {
	svc, output := newService(t, startInference(t))

	status, err := svc.Stream(context.Background(), StreamOptions{Frames: 5, Duration: 10 * time.Second})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if status.Metrics.ResultsReceived < 5 {
		t.Errorf("Expected at least 5 results, got %d", status.Metrics.ResultsReceived)
	}
	if status.Metrics.FramesSent != status.Metrics.ResultsReceived {
		t.Errorf("Every frame should be answered after drain: sent %d, received %d",
			status.Metrics.FramesSent, status.Metrics.ResultsReceived)
	}
	if status.Metrics.MaxOutstanding != 1 {
		t.Errorf("Expected at most one frame in flight, got %d", status.Metrics.MaxOutstanding)
	}
	if status.Mode != entities.ModeIdle || status.InFlight {
		t.Errorf("Expected an idle session, got mode %s inFlight %v", status.Mode, status.InFlight)
	}
	if info, err := os.Stat(output); err != nil || info.Size() == 0 {
		t.Errorf("Expected a rendered overlay at %s: %v", output, err)
	}
}

func TestStreamService_StreamStopsOnContext(t *testing.T) {
	svc, _ := newService(t, startInference(t))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	status, err := svc.Stream(ctx, StreamOptions{})
	if err != nil {
		t.Fatalf("Cancelling the stream should not be an error, got %v", err)
	}
	if status.Metrics.ResultsReceived == 0 {
		t.Error("Expected some results before cancellation")
	}
}

func TestStreamService_Snap(t *testing.T) {
	svc, output := newService(t, startInference(t))

	result, err := svc.Snap(context.Background())
	if err != nil {
		t.Fatalf("Snap failed: %v", err)
	}
	if !result.Success || result.SequenceNumber != 1 {
		t.Errorf("Unexpected result %+v", result)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("Expected a rendered overlay: %v", err)
	}
}

func TestStreamService_SnapMalformedReply(t *testing.T) {
	upgrader := gorilla.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			if err := conn.WriteMessage(gorilla.TextMessage, []byte("{not json")); err != nil {
				return
			}
		}
	}))
	defer ts.Close()

	svc, output := newService(t, "ws"+strings.TrimPrefix(ts.URL, "http")+api.FramePath)

	started := time.Now()
	_, err := svc.Snap(context.Background())
	if !errors.Is(err, entities.ErrMalformedResult) {
		t.Fatalf("Expected ErrMalformedResult, got %v", err)
	}
	if IsConnectivity(err) {
		t.Errorf("A malformed reply is not a connectivity error: %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Errorf("Snap should return as soon as the reply arrives, took %s", elapsed)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("Nothing should be rendered for a malformed reply: %v", err)
	}
}

func TestStreamService_Unreachable(t *testing.T) {
	svc, _ := newService(t, "ws://127.0.0.1:1/ws/process-frame")

	if _, err := svc.Stream(context.Background(), StreamOptions{Frames: 1}); err == nil {
		t.Error("Expected an error for an unreachable endpoint")
	}
	if _, err := svc.Snap(context.Background()); err == nil {
		t.Error("Expected an error for an unreachable endpoint")
	}
}

func TestNewCaptureSource(t *testing.T) {
	if _, err := NewCaptureSource(config.CaptureConfig{Source: "webcam"}, zap.NewNop()); err == nil {
		t.Error("Expected an error for an unknown source")
	}
	if _, err := NewCaptureSource(config.CaptureConfig{Source: "directory", Dir: t.TempDir()}, zap.NewNop()); err == nil {
		t.Error("Expected an error for an empty directory")
	}
}

func TestIsConnectivity(t *testing.T) {
	if !IsConnectivity(entities.ErrNotConnected) || !IsConnectivity(errors.Join(errors.New("x"), entities.ErrTransportFailure)) {
		t.Error("Expected connectivity errors to be recognised")
	}
	if IsConnectivity(entities.ErrCaptureUnavailable) {
		t.Error("Capture errors are not connectivity errors")
	}
}
