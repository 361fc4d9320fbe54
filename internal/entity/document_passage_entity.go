package entity

import (
	"time"

	"github.com/google/uuid"
)

// DocumentPassage is a chunk of the indexed corpus. Rows are written by the
// ingestion pipeline; this service only reads them.
type DocumentPassage struct {
	Id          uuid.UUID
	SourceId    string
	Content     string
	Url         string
	Header      string
	HeaderType  string
	ContentType string
	Embedding   []float32
	CreatedAt   time.Time
}
