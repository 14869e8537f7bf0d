package search

import (
	"testing"

	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/models"
)

func newIndex(t *testing.T) *TranscriptIndex {
	t.Helper()
	idx, err := NewTranscriptIndex()
	if err != nil {
		t.Fatalf("NewTranscriptIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexAndSearch(t *testing.T) {
	idx := newIndex(t)
	if err := idx.Index(models.AudioTranscript{ID: "t1", FeedID: "lobby", Transcript: "delivery truck at the loading dock"}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Index(models.AudioTranscript{ID: "t2", FeedID: "garage", Transcript: "patrol complete, all clear"}); err != nil {
		t.Fatalf("Index: %v", err)
	}

	hits, err := idx.Search("loading dock", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("no hits for indexed phrase")
	}
	if hits[0].ID != "t1" {
		t.Fatalf("top hit = %s, want t1", hits[0].ID)
	}
	if hits[0].FeedID != "lobby" {
		t.Fatalf("feedId field not returned: %+v", hits[0])
	}
}

func TestAttachIndexesStoreTranscripts(t *testing.T) {
	idx := newIndex(t)
	store := resource.New(100)
	idx.Attach(store)

	store.AddTranscript(models.AudioTranscript{FeedID: "gate", Transcript: "open the side entrance"})
	store.AddDetection(models.Detection{FeedID: "gate", Type: models.DetectionPerson, Severity: models.SeverityLow})

	n, err := idx.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("indexed %d docs, want 1 (detections must be ignored)", n)
	}

	hits, err := idx.Search("side entrance", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
}

func TestSearchDefaultLimit(t *testing.T) {
	idx := newIndex(t)
	if _, err := idx.Search("anything", 0); err != nil {
		t.Fatalf("Search with zero limit: %v", err)
	}
}
