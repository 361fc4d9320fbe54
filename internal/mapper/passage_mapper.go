package mapper

import (
	"rag-agent-be/internal/entity"
	"rag-agent-be/internal/model"

	"github.com/pgvector/pgvector-go"
)

type PassageMapper struct{}

func NewPassageMapper() *PassageMapper {
	return &PassageMapper{}
}

func (m *PassageMapper) ToEntity(p *model.DocumentPassage) *entity.DocumentPassage {
	if p == nil {
		return nil
	}
	return &entity.DocumentPassage{
		Id:          p.Id,
		SourceId:    p.SourceId,
		Content:     p.Content,
		Url:         p.Url,
		Header:      p.Header,
		HeaderType:  p.HeaderType,
		ContentType: p.ContentType,
		Embedding:   p.Embedding.Slice(),
		CreatedAt:   p.CreatedAt,
	}
}

func (m *PassageMapper) ToModel(p *entity.DocumentPassage) *model.DocumentPassage {
	if p == nil {
		return nil
	}
	return &model.DocumentPassage{
		Id:          p.Id,
		SourceId:    p.SourceId,
		Content:     p.Content,
		Url:         p.Url,
		Header:      p.Header,
		HeaderType:  p.HeaderType,
		ContentType: p.ContentType,
		Embedding:   pgvector.NewVector(p.Embedding),
		CreatedAt:   p.CreatedAt,
	}
}
