package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/argus-vision/argus/config"
	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/models"
)

func TestBroadcasterAttachDetach(t *testing.T) {
	store := resource.New(10)
	b := NewBroadcaster(store, time.Hour, nil)

	_, _, detach1 := b.attach()
	_, _, detach2 := b.attach()
	if b.SessionCount() != 2 {
		t.Fatalf("sessions = %d, want 2", b.SessionCount())
	}
	detach1()
	detach1() // idempotent
	detach2()
	if b.SessionCount() != 0 {
		t.Fatalf("sessions = %d, want 0", b.SessionCount())
	}
}

func TestBroadcasterDeliversStoreEvents(t *testing.T) {
	store := resource.New(10)
	b := NewBroadcaster(store, time.Hour, nil)
	_, ch, detach := b.attach()
	defer detach()

	store.AddDetection(models.Detection{ID: "d1", FeedID: "f", Type: models.DetectionPerson, Severity: models.SeverityLow})

	select {
	case env := <-ch:
		if env.Type != "detection" {
			t.Fatalf("frame type = %s, want detection", env.Type)
		}
		if env.Timestamp.IsZero() {
			t.Fatal("frame missing timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestBroadcasterDropsForSlowSession(t *testing.T) {
	store := resource.New(1000)
	b := NewBroadcaster(store, time.Hour, nil)
	_, ch, detach := b.attach()
	defer detach()

	// Never read: the buffer fills and further frames are dropped, but the
	// store is never blocked.
	done := make(chan struct{})
	go func() {
		for i := 0; i < sessionBuffer+50; i++ {
			store.AddDetection(models.Detection{FeedID: "f", Type: models.DetectionMotion, Severity: models.SeverityLow})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("slow session blocked the store")
	}
	if len(ch) != sessionBuffer {
		t.Fatalf("buffered frames = %d, want %d", len(ch), sessionBuffer)
	}
}

// noFlushWriter strips the http.Flusher implementation from the recorder.
type noFlushWriter struct{ http.ResponseWriter }

func TestHandleEventsRejectsNonStreamingWriter(t *testing.T) {
	store := resource.New(10)
	s := &Server{
		cfg:         &config.Config{},
		store:       store,
		broadcaster: NewBroadcaster(store, time.Hour, nil),
		logger:      testLogger(),
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, noFlushWriter{rec})

	err := s.handleEvents(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for non-streaming writer, got %v", err)
	}
	// Headers must not have been committed, or the 503 could not be sent.
	if c.Response().Committed {
		t.Fatal("response committed before the streaming check")
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "" {
		t.Fatalf("stream headers written before the check: %q", got)
	}
	if s.broadcaster.SessionCount() != 0 {
		t.Fatal("session attached despite rejected writer")
	}
}

func TestHandleEventsStreamsConnectedThenEvents(t *testing.T) {
	store := resource.New(10)
	s := &Server{
		cfg:         &config.Config{},
		store:       store,
		broadcaster: NewBroadcaster(store, time.Hour, nil),
		logger:      testLogger(),
	}

	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- s.handleEvents(c) }()

	deadline := time.After(2 * time.Second)
	for s.broadcaster.SessionCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("session never attached")
		case <-time.After(5 * time.Millisecond):
		}
	}

	store.AddDetection(models.Detection{ID: "d1", FeedID: "gate", Type: models.DetectionPerson, Severity: models.SeverityHigh})
	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("handleEvents: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"type":"connected"`) {
		t.Fatalf("first frame not connected:\n%s", body)
	}
	if !strings.Contains(body, `"type":"detection"`) {
		t.Fatalf("detection frame missing:\n%s", body)
	}
	if idx := strings.Index(body, `"type":"connected"`); idx > strings.Index(body, `"type":"detection"`) {
		t.Fatal("connected frame not first")
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/event-stream" {
		t.Fatalf("content-type = %s", got)
	}
	if rec.Header().Get("X-Accel-Buffering") != "no" {
		t.Fatal("proxy buffering not disabled")
	}
	if s.broadcaster.SessionCount() != 0 {
		t.Fatal("session not detached after disconnect")
	}
}

func TestHandleEventsHeartbeat(t *testing.T) {
	store := resource.New(10)
	s := &Server{
		cfg:         &config.Config{},
		store:       store,
		broadcaster: NewBroadcaster(store, 10*time.Millisecond, nil),
		logger:      testLogger(),
	}

	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	done := make(chan error, 1)
	go func() { done <- s.handleEvents(c) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("handleEvents: %v", err)
	}

	if !strings.Contains(rec.Body.String(), `"type":"heartbeat"`) {
		t.Fatalf("no heartbeat frame:\n%s", rec.Body.String())
	}
}
