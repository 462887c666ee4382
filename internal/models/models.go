package models

import (
	"time"
)

// FileStatus is the persisted lifecycle state of an uploaded file.
type FileStatus string

const (
	StatusPending    FileStatus = "PENDING"
	StatusProcessing FileStatus = "PROCESSING"
	StatusReady      FileStatus = "READY"
	StatusError      FileStatus = "ERROR"
)

// Valid reports whether s is one of the known status values.
func (s FileStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends a delivery attempt.
func (s FileStatus) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// Statuses lists every known status in lifecycle order.
var Statuses = []FileStatus{StatusPending, StatusProcessing, StatusReady, StatusError}

// CanTransitionTo reports whether a file may move from s to next. PENDING is
// only re-entered by reprocessing a finished file; a file that is being
// processed or is already waiting for a job cannot be queued again.
func (s FileStatus) CanTransitionTo(next FileStatus) bool {
	switch next {
	case StatusPending:
		return s.Terminal()
	case StatusProcessing:
		return s.Valid()
	case StatusReady:
		return s == StatusProcessing
	case StatusError:
		return s == StatusPending || s == StatusProcessing || s == StatusError
	}
	return false
}

// AllowedFrom returns the statuses a file may hold immediately before next.
func AllowedFrom(next FileStatus) []FileStatus {
	var out []FileStatus
	for _, s := range Statuses {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}

// File represents one uploaded transcript or caption document.
type File struct {
	ID              string     `db:"id" json:"id"`
	UserID          string     `db:"user_id" json:"user_id"`
	Name            string     `db:"name" json:"name"`
	ContentType     string     `db:"content_type" json:"content_type"`
	Size            int64      `db:"size" json:"size"`
	StoragePath     string     `db:"storage_path" json:"storage_path"` // key into the blob store
	Status          FileStatus `db:"status" json:"status"`
	DurationMinutes float64    `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// IngestionJob is one unit of queued work referencing a file.
type IngestionJob struct {
	ID         string    `json:"id"`
	FileID     string    `json:"fileId"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`
}

// Chunk is an overlapping slice of a file's text.
type Chunk struct {
	Index  int
	Text   string
	FileID string
}

// PageNumber is the 1-based location carried in the point payload.
func (c Chunk) PageNumber() int {
	return c.Index + 1
}

// Payload keys shared by every vector index backend.
const (
	PayloadFileID  = "fileId"
	PayloadContent = "content"
	PayloadLoc     = "loc"
	PayloadPage    = "pageNumber"
	PayloadSource  = "source"
)

// EmbeddingPoint is a single vector index entry.
type EmbeddingPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// FileID returns the fileId payload value, or "" when it is missing.
func (p EmbeddingPoint) FileID() string {
	id, _ := p.Payload[PayloadFileID].(string)
	return id
}

// NewPointPayload builds the payload stored next to a chunk's vector.
func NewPointPayload(c Chunk, source string) map[string]any {
	return map[string]any{
		PayloadSource:  source,
		PayloadFileID:  c.FileID,
		PayloadContent: c.Text,
		PayloadLoc:     map[string]any{PayloadPage: c.PageNumber()},
	}
}

// Match selects payload values; a condition matches when the field equals any of Any.
type Match struct {
	Any []string `json:"any"`
}

// FieldCondition restricts a payload key.
type FieldCondition struct {
	Key   string `json:"key"`
	Match Match  `json:"match"`
}

// Filter is a conjunction of field conditions.
type Filter struct {
	Must []FieldCondition `json:"must"`
}

// FileFilter restricts a search to points belonging to the given files.
func FileFilter(fileIDs ...string) Filter {
	return Filter{Must: []FieldCondition{{Key: PayloadFileID, Match: Match{Any: fileIDs}}}}
}

// Matches reports whether payload satisfies every condition in f.
func (f Filter) Matches(payload map[string]any) bool {
	for _, cond := range f.Must {
		v, ok := payload[cond.Key].(string)
		if !ok {
			return false
		}
		found := false
		for _, want := range cond.Match.Any {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// SearchHit is one nearest-neighbour result.
type SearchHit struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}
