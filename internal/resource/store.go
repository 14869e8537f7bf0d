package resource

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argus-vision/argus/models"
)

// EvictHook receives resources pushed out by the per-kind retention cap.
type EvictHook func(kind models.ResourceType, resource interface{})

// eviction is one queued hand-off to the eviction hook.
type eviction struct {
	kind     models.ResourceType
	resource interface{}
}

// evictQueueSize bounds how many evicted resources may wait for the hook
// before further evictions are dropped.
const evictQueueSize = 256

// Store owns all mutable automation state. It is the single writer of
// canonical resources; readers get defensive copies and subscribers get
// per-event copies. All methods are safe for concurrent use.
//
// Mutation and subscriber notification are serialized by emitMu so that
// events are delivered in the order the add calls committed. Subscriber
// callbacks therefore must not call back into the store's add methods.
type Store struct {
	emitMu sync.Mutex
	mu     sync.RWMutex

	detections   collection
	matches      collection
	transcripts  collection
	summaries    collection
	workflows    collection
	traces       collection
	integrations collection

	subs      map[int64]func(models.Event)
	subOrder  []int64
	nextSubID int64

	evictCh chan eviction
	logger  *log.Logger
}

// New creates an empty store with the given per-kind retention cap.
func New(maxPerKind int) *Store {
	return &Store{
		detections:   newCollection(maxPerKind),
		matches:      newCollection(maxPerKind),
		transcripts:  newCollection(maxPerKind),
		summaries:    newCollection(maxPerKind),
		workflows:    newCollection(maxPerKind),
		traces:       newCollection(maxPerKind),
		integrations: newCollection(maxPerKind),
		subs:         make(map[int64]func(models.Event)),
		logger:       log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
}

// OnEvict installs the eviction hook. Evicted resources are handed over on a
// dedicated goroutine, so a slow hook never stalls producers or subscriber
// delivery; when the hand-off queue is full, further evictions are dropped
// and logged. Call before the store is shared.
func (s *Store) OnEvict(fn EvictHook) {
	s.evictCh = make(chan eviction, evictQueueSize)
	go func() {
		for e := range s.evictCh {
			s.runEvictHook(fn, e)
		}
	}()
}

// runEvictHook isolates one hook invocation; a panic is logged and the
// drainer keeps going.
func (s *Store) runEvictHook(fn EvictHook, e eviction) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("eviction hook panicked on %s: %v", e.kind, r)
		}
	}()
	fn(e.kind, e.resource)
}

// Subscribe registers a callback for every subsequent event. The returned id
// removes it via Unsubscribe. A callback registered while a broadcast is in
// flight does not receive that event.
func (s *Store) Subscribe(fn func(models.Event)) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = fn
	s.subOrder = append(s.subOrder, id)
	return id
}

// Unsubscribe removes a subscriber. Unknown or already-removed ids are a no-op.
func (s *Store) Unsubscribe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return
	}
	delete(s.subs, id)
	for i, sid := range s.subOrder {
		if sid == id {
			s.subOrder = append(s.subOrder[:i], s.subOrder[i+1:]...)
			break
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (s *Store) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// put commits v under id in c and fans the event out to all subscribers that
// were registered when the mutation committed, in subscription order.
func (s *Store) put(kind models.ResourceType, id string, stored, emitted interface{}, c *collection) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	evicted, hadEviction := c.upsert(id, stored)
	ids := make([]int64, len(s.subOrder))
	copy(ids, s.subOrder)
	evictCh := s.evictCh
	s.mu.Unlock()

	if hadEviction && evictCh != nil {
		select {
		case evictCh <- eviction{kind: kind, resource: evicted}:
		default:
			s.logger.Printf("eviction queue full, dropping evicted %s", kind)
		}
	}

	ev := models.Event{Type: kind, Data: emitted}
	for _, sid := range ids {
		s.mu.RLock()
		fn, ok := s.subs[sid]
		s.mu.RUnlock()
		if !ok {
			continue
		}
		s.invoke(sid, fn, ev)
	}
}

// invoke isolates one subscriber callback; a panic is logged and never
// reaches the store's caller or other subscribers.
func (s *Store) invoke(id int64, fn func(models.Event), ev models.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("subscriber %d panicked on %s event: %v", id, ev.Type, r)
		}
	}()
	fn(ev)
}

// AddDetection appends or replaces a detection and notifies subscribers.
// Missing id and timestamp are store-assigned.
func (s *Store) AddDetection(d models.Detection) models.Detection {
	stamp(&d.ID, &d.Timestamp)
	s.put(models.TypeDetection, d.ID, copyDetection(d), copyDetection(d), &s.detections)
	return d
}

// GetDetection returns a defensive copy with confidences clamped to [0,1].
func (s *Store) GetDetection(id string) (models.Detection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.detections.get(id)
	if !ok {
		return models.Detection{}, false
	}
	return copyDetection(v.(models.Detection)), true
}

// ListDetections returns all detections in insertion order.
func (s *Store) ListDetections() []models.Detection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Detection, 0, s.detections.len())
	for _, v := range s.detections.list() {
		out = append(out, copyDetection(v.(models.Detection)))
	}
	return out
}

// AddIdentityMatch retains the match even when no identity was resolved.
func (s *Store) AddIdentityMatch(m models.IdentityMatch) models.IdentityMatch {
	stamp(&m.ID, &m.Timestamp)
	m.Confidence = models.ClampConfidence(m.Confidence)
	s.put(models.TypeIdentityMatch, m.ID, m, m, &s.matches)
	return m
}

func (s *Store) GetIdentityMatch(id string) (models.IdentityMatch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.matches.get(id)
	if !ok {
		return models.IdentityMatch{}, false
	}
	return v.(models.IdentityMatch), true
}

func (s *Store) ListIdentityMatches() []models.IdentityMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.IdentityMatch, 0, s.matches.len())
	for _, v := range s.matches.list() {
		out = append(out, v.(models.IdentityMatch))
	}
	return out
}

// AddTranscript accepts inverted start/end ranges rather than dropping data.
func (s *Store) AddTranscript(t models.AudioTranscript) models.AudioTranscript {
	stamp(&t.ID, &t.Timestamp)
	t.Confidence = models.ClampConfidence(t.Confidence)
	s.put(models.TypeTranscript, t.ID, t, t, &s.transcripts)
	return t
}

func (s *Store) GetTranscript(id string) (models.AudioTranscript, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.transcripts.get(id)
	if !ok {
		return models.AudioTranscript{}, false
	}
	return v.(models.AudioTranscript), true
}

func (s *Store) ListTranscripts() []models.AudioTranscript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AudioTranscript, 0, s.transcripts.len())
	for _, v := range s.transcripts.list() {
		out = append(out, v.(models.AudioTranscript))
	}
	return out
}

func (s *Store) AddSummary(v models.VideoSummary) models.VideoSummary {
	stamp(&v.ID, &v.Timestamp)
	s.put(models.TypeSummary, v.ID, copySummary(v), copySummary(v), &s.summaries)
	return v
}

func (s *Store) GetSummary(id string) (models.VideoSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.summaries.get(id)
	if !ok {
		return models.VideoSummary{}, false
	}
	return copySummary(v.(models.VideoSummary)), true
}

func (s *Store) ListSummaries() []models.VideoSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.VideoSummary, 0, s.summaries.len())
	for _, v := range s.summaries.list() {
		out = append(out, copySummary(v.(models.VideoSummary)))
	}
	return out
}

func (s *Store) AddWorkflow(w models.ActiveWorkflow) models.ActiveWorkflow {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.StartedAt.IsZero() {
		w.StartedAt = time.Now().UTC()
	}
	if w.LastEventAt.IsZero() {
		w.LastEventAt = w.StartedAt
	}
	if w.Status == "" {
		w.Status = models.WorkflowRunning
	}
	s.put(models.TypeWorkflow, w.ID, copyWorkflow(w), copyWorkflow(w), &s.workflows)
	return w
}

func (s *Store) GetWorkflow(id string) (models.ActiveWorkflow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.workflows.get(id)
	if !ok {
		return models.ActiveWorkflow{}, false
	}
	return copyWorkflow(v.(models.ActiveWorkflow)), true
}

func (s *Store) ListWorkflows() []models.ActiveWorkflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ActiveWorkflow, 0, s.workflows.len())
	for _, v := range s.workflows.list() {
		out = append(out, copyWorkflow(v.(models.ActiveWorkflow)))
	}
	return out
}

// SetWorkflowStatus mutates only the status and last-event time of an
// existing workflow; this is the single post-creation mutation the
// orchestrator is allowed.
func (s *Store) SetWorkflowStatus(id string, status models.WorkflowStatus) (models.ActiveWorkflow, error) {
	w, ok := s.GetWorkflow(id)
	if !ok {
		return models.ActiveWorkflow{}, models.ErrResourceNotFound
	}
	w.Status = status
	w.LastEventAt = time.Now().UTC()
	s.put(models.TypeWorkflow, w.ID, copyWorkflow(w), copyWorkflow(w), &s.workflows)
	return w, nil
}

func (s *Store) AddTrace(t models.NodeExecutionTrace) models.NodeExecutionTrace {
	stamp(&t.ID, &t.Timestamp)
	s.put(models.TypeTrace, t.ID, copyTrace(t), copyTrace(t), &s.traces)
	return t
}

func (s *Store) GetTrace(id string) (models.NodeExecutionTrace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.traces.get(id)
	if !ok {
		return models.NodeExecutionTrace{}, false
	}
	return copyTrace(v.(models.NodeExecutionTrace)), true
}

func (s *Store) ListTraces() []models.NodeExecutionTrace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.NodeExecutionTrace, 0, s.traces.len())
	for _, v := range s.traces.list() {
		out = append(out, copyTrace(v.(models.NodeExecutionTrace)))
	}
	return out
}

func (s *Store) GetIntegration(id string) (models.Integration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.integrations.get(id)
	if !ok {
		return models.Integration{}, false
	}
	return copyIntegration(v.(models.Integration)), true
}

func (s *Store) ListIntegrations() []models.Integration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Integration, 0, s.integrations.len())
	for _, v := range s.integrations.list() {
		out = append(out, copyIntegration(v.(models.Integration)))
	}
	return out
}

// ReplaceIntegrations swaps the full integration set (the sync operation)
// and emits one event per surviving integration, in the given order.
func (s *Store) ReplaceIntegrations(list []models.Integration) []models.Integration {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	stored := make([]models.Integration, 0, len(list))
	s.mu.Lock()
	s.integrations.reset()
	for _, in := range list {
		if in.ID == "" {
			in.ID = uuid.NewString()
		}
		if in.Status == "" {
			in.Status = models.IntegrationStandby
		}
		s.integrations.upsert(in.ID, copyIntegration(in))
		stored = append(stored, in)
	}
	ids := make([]int64, len(s.subOrder))
	copy(ids, s.subOrder)
	s.mu.Unlock()

	for _, in := range stored {
		ev := models.Event{Type: models.TypeIntegration, Data: copyIntegration(in)}
		for _, sid := range ids {
			s.mu.RLock()
			fn, ok := s.subs[sid]
			s.mu.RUnlock()
			if !ok {
				continue
			}
			s.invoke(sid, fn, ev)
		}
	}
	return stored
}

// Counts reports the live size of every collection.
func (s *Store) Counts() map[models.ResourceType]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[models.ResourceType]int{
		models.TypeDetection:     s.detections.len(),
		models.TypeIdentityMatch: s.matches.len(),
		models.TypeTranscript:    s.transcripts.len(),
		models.TypeSummary:       s.summaries.len(),
		models.TypeWorkflow:      s.workflows.len(),
		models.TypeTrace:         s.traces.len(),
		models.TypeIntegration:   s.integrations.len(),
	}
}

// GetKind resolves a resource by kind and id for the protocol dispatcher.
func (s *Store) GetKind(kind models.ResourceType, id string) (interface{}, bool) {
	switch kind {
	case models.TypeDetection:
		return orNil(s.GetDetection(id))
	case models.TypeIdentityMatch:
		return orNil(s.GetIdentityMatch(id))
	case models.TypeTranscript:
		return orNil(s.GetTranscript(id))
	case models.TypeSummary:
		return orNil(s.GetSummary(id))
	case models.TypeWorkflow:
		return orNil(s.GetWorkflow(id))
	case models.TypeTrace:
		return orNil(s.GetTrace(id))
	case models.TypeIntegration:
		return orNil(s.GetIntegration(id))
	}
	return nil, false
}

// ListKind resolves a full collection by kind for the protocol dispatcher.
func (s *Store) ListKind(kind models.ResourceType) (interface{}, bool) {
	switch kind {
	case models.TypeDetection:
		return s.ListDetections(), true
	case models.TypeIdentityMatch:
		return s.ListIdentityMatches(), true
	case models.TypeTranscript:
		return s.ListTranscripts(), true
	case models.TypeSummary:
		return s.ListSummaries(), true
	case models.TypeWorkflow:
		return s.ListWorkflows(), true
	case models.TypeTrace:
		return s.ListTraces(), true
	case models.TypeIntegration:
		return s.ListIntegrations(), true
	}
	return nil, false
}

func orNil[T any](v T, ok bool) (interface{}, bool) {
	if !ok {
		return nil, false
	}
	return v, true
}

func stamp(id *string, ts *time.Time) {
	if *id == "" {
		*id = uuid.NewString()
	}
	if ts.IsZero() {
		*ts = time.Now().UTC()
	}
}
