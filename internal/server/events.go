package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/internal/telemetry"
	"github.com/argus-vision/argus/models"
)

var eventsTracer = otel.Tracer("argus/server/events")

// envelope is the wire shape of every pushed frame.
type envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// sessionBuffer bounds how many undelivered frames a slow client may hold
// before new frames are dropped for that client.
const sessionBuffer = 64

// Broadcaster fans store events out to connected push sessions. It is the
// single store subscriber for the HTTP layer; each session gets its own
// buffered channel so one stalled client cannot block the rest.
type Broadcaster struct {
	mu        sync.Mutex
	sessions  map[int64]chan envelope
	nextID    int64
	heartbeat time.Duration
	metrics   *telemetry.Metrics
}

// NewBroadcaster subscribes to the store and starts fanning out events.
func NewBroadcaster(store *resource.Store, heartbeat time.Duration, metrics *telemetry.Metrics) *Broadcaster {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	b := &Broadcaster{
		sessions:  make(map[int64]chan envelope),
		heartbeat: heartbeat,
		metrics:   metrics,
	}
	store.Subscribe(func(ev models.Event) {
		b.publish(envelope{Type: string(ev.Type), Data: ev.Data, Timestamp: time.Now().UTC()})
		if metrics != nil {
			metrics.EventsBroadcast.WithLabelValues(string(ev.Type)).Inc()
		}
	})
	return b
}

// publish delivers one frame to every session, dropping it for sessions whose
// buffer is full.
func (b *Broadcaster) publish(env envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.sessions {
		select {
		case ch <- env:
		default:
		}
	}
}

// attach registers a new session and returns its channel plus a detach func.
func (b *Broadcaster) attach() (int64, <-chan envelope, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	ch := make(chan envelope, sessionBuffer)
	b.sessions[id] = ch
	if b.metrics != nil {
		b.metrics.PushSessions.Inc()
	}
	detach := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.sessions[id]; !ok {
			return
		}
		delete(b.sessions, id)
		if b.metrics != nil {
			b.metrics.PushSessions.Dec()
		}
	}
	return id, ch, detach
}

// SessionCount reports the number of connected push sessions.
func (b *Broadcaster) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// handleEvents streams store events to the client via Server-Sent Events. The
// first frame is always "connected"; heartbeats keep idle connections alive.
func (s *Server) handleEvents(c echo.Context) error {
	req := c.Request()
	ctx, span := eventsTracer.Start(req.Context(), "Server.handleEvents")
	defer span.End()
	c.SetRequest(req.WithContext(ctx))

	resp := c.Response()
	// The Flusher check must precede any header write, or the 503 could
	// never reach the client.
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		span.SetStatus(codes.Error, "streaming unsupported")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)

	id, ch, detach := s.broadcaster.attach()
	defer detach()
	span.SetAttributes(attribute.Int64("session_id", id))

	send := func(env envelope) error {
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		if _, err := resp.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(envelope{Type: "connected", Message: "event stream established", Timestamp: time.Now().UTC()}); err != nil {
		span.RecordError(err)
		return nil
	}

	ticker := time.NewTicker(s.broadcaster.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-ch:
			if err := send(env); err != nil {
				span.RecordError(err)
				return nil
			}
		case <-ticker.C:
			if err := send(envelope{Type: "heartbeat", Timestamp: time.Now().UTC()}); err != nil {
				span.RecordError(err)
				return nil
			}
			if s.metrics != nil {
				s.metrics.HeartbeatsSent.Inc()
			}
		}
	}
}
