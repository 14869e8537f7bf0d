// Package search maintains an in-memory full-text index over audio
// transcripts so agents can query spoken content via the search_transcripts
// tool. The index is fed by a store subscription and rebuilt from nothing on
// restart, like the rest of the automation state.
package search

import (
	"fmt"
	"log"

	"github.com/blevesearch/bleve"

	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/models"
)

// Hit is one transcript match.
type Hit struct {
	ID         string  `json:"id"`
	FeedID     string  `json:"feedId"`
	Transcript string  `json:"transcript"`
	Score      float64 `json:"score"`
}

type indexedTranscript struct {
	FeedID     string  `json:"feedId"`
	Transcript string  `json:"transcript"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence"`
}

// TranscriptIndex wraps a memory-only bleve index.
type TranscriptIndex struct {
	index  bleve.Index
	logger *log.Logger
}

// NewTranscriptIndex builds an empty in-memory index.
func NewTranscriptIndex() (*TranscriptIndex, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create transcript index: %w", err)
	}
	return &TranscriptIndex{
		index:  idx,
		logger: log.New(log.Writer(), "[SEARCH] ", log.LstdFlags),
	}, nil
}

// Attach subscribes to the store and indexes every transcript event. The
// returned unsubscribe id belongs to the caller.
func (t *TranscriptIndex) Attach(store *resource.Store) int64 {
	return store.Subscribe(func(ev models.Event) {
		if ev.Type != models.TypeTranscript {
			return
		}
		tr, ok := ev.Data.(models.AudioTranscript)
		if !ok {
			return
		}
		if err := t.Index(tr); err != nil {
			t.logger.Printf("index transcript %s: %v", tr.ID, err)
		}
	})
}

// Index adds or replaces one transcript document.
func (t *TranscriptIndex) Index(tr models.AudioTranscript) error {
	return t.index.Index(tr.ID, indexedTranscript{
		FeedID:     tr.FeedID,
		Transcript: tr.Transcript,
		Language:   tr.Language,
		Confidence: tr.Confidence,
	})
}

// Search runs a query-string search and returns up to limit hits.
func (t *TranscriptIndex) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewQueryStringQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"feedId", "transcript"}
	res, err := t.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("transcript search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["feedId"].(string); ok {
			hit.FeedID = v
		}
		if v, ok := h.Fields["transcript"].(string); ok {
			hit.Transcript = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count reports the number of indexed transcripts.
func (t *TranscriptIndex) Count() (uint64, error) {
	return t.index.DocCount()
}

// Close releases the index.
func (t *TranscriptIndex) Close() error {
	return t.index.Close()
}
