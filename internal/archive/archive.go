// Package archive persists detections that the in-memory store evicts under
// its retention cap, so bounded live state never means silent data loss.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/argus-vision/argus/models"
)

// Archive writes evicted detections to Postgres.
type Archive struct {
	DB     *sql.DB
	logger *log.Logger
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Archive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing connection (tests use sqlmock here).
func NewWithDB(db *sql.DB) *Archive {
	return &Archive{
		DB:     db,
		logger: log.New(log.Writer(), "[ARCHIVE] ", log.LstdFlags),
	}
}

// StoreDetection upserts one detection row with its full JSON payload.
func (a *Archive) StoreDetection(ctx context.Context, d models.Detection) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal detection %s: %w", d.ID, err)
	}
	_, err = a.DB.ExecContext(ctx, `
        INSERT INTO archived_detections (id, feed_id, detection_type, severity, occurred_at, payload)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO UPDATE SET
            feed_id = EXCLUDED.feed_id,
            detection_type = EXCLUDED.detection_type,
            severity = EXCLUDED.severity,
            occurred_at = EXCLUDED.occurred_at,
            payload = EXCLUDED.payload,
            archived_at = NOW()
    `, d.ID, d.FeedID, d.Type, d.Severity, d.Timestamp, payload)
	if err != nil {
		return fmt.Errorf("archive detection %s: %w", d.ID, err)
	}
	return nil
}

// CountDetections reports the archived row count.
func (a *Archive) CountDetections(ctx context.Context) (int64, error) {
	var n int64
	if err := a.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_detections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived detections: %w", err)
	}
	return n, nil
}

// EvictionHook adapts the archive to the store's eviction callback. Archiving
// runs best-effort: a write failure is logged, never propagated into the
// store's hot path.
func (a *Archive) EvictionHook() func(kind models.ResourceType, resource interface{}) {
	return func(kind models.ResourceType, resource interface{}) {
		if kind != models.TypeDetection {
			return
		}
		d, ok := resource.(models.Detection)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.StoreDetection(ctx, d); err != nil {
			a.logger.Printf("evicted detection %s not archived: %v", d.ID, err)
		}
	}
}

// Close releases the connection pool.
func (a *Archive) Close() error {
	return a.DB.Close()
}
