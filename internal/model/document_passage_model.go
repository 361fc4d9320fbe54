package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

type DocumentPassage struct {
	Id          uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SourceId    string          `gorm:"type:text;index"`
	Content     string          `gorm:"type:text;not null"`
	Url         string          `gorm:"type:text"`
	Header      string          `gorm:"type:text"`
	HeaderType  string          `gorm:"type:varchar(20)"`
	ContentType string          `gorm:"type:varchar(50)"`
	Embedding   pgvector.Vector `gorm:"type:vector(768)"` // nomic-embed-text and text-embedding-004 are both 768-d
	CreatedAt   time.Time       `gorm:"autoCreateTime"`
}

func (DocumentPassage) TableName() string {
	return "document_passages"
}
