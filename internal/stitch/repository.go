package stitch

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// timeLayout has a fixed width so stored timestamps compare lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Record is a stored composition.
type Record struct {
	ID            string    `json:"id"`
	MainVideoURL  string    `json:"main_video_url"`
	TotalDuration float64   `json:"total_duration"`
	VideoSegments int       `json:"video_segments"`
	AdSegments    int       `json:"ad_segments"`
	ProcessingMs  int64     `json:"processing_ms"`
	Request       Request   `json:"request"`
	Response      Response  `json:"response"`
	CreatedAt     time.Time `json:"created_at"`
}

type Repository interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Count(ctx context.Context) (int, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Save(ctx context.Context, rec *Record) error {
	reqJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	respJSON, err := json.Marshal(rec.Response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO compositions (id, main_video_url, total_duration, video_segments, ad_segments, processing_ms, request_json, response_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.MainVideoURL, rec.TotalDuration, rec.VideoSegments, rec.AdSegments, rec.ProcessingMs,
		string(reqJSON), string(respJSON), rec.CreatedAt.UTC().Format(timeLayout))
	return err
}

// Get returns the composition with the given id, or nil when none exists.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, main_video_url, total_duration, video_segments, ad_segments, processing_ms, request_json, response_json, created_at
		FROM compositions WHERE id = ?
	`, id)

	var rec Record
	var reqJSON, respJSON, createdAt string
	err := row.Scan(&rec.ID, &rec.MainVideoURL, &rec.TotalDuration, &rec.VideoSegments, &rec.AdSegments,
		&rec.ProcessingMs, &reqJSON, &respJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(reqJSON), &rec.Request); err != nil {
		return nil, fmt.Errorf("decode stored request: %w", err)
	}
	if err := json.Unmarshal([]byte(respJSON), &rec.Response); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)

	return &rec, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM compositions`).Scan(&n)
	return n, err
}

// DeleteBefore removes compositions created before the given time.
func (r *SQLiteRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM compositions WHERE created_at < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
