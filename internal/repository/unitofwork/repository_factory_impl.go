package unitofwork

import (
	"context"

	"rag-agent-be/pkg/database"

	"gorm.io/gorm"
)

type RepositoryFactoryImpl struct {
	db *gorm.DB
}

func NewRepositoryFactory(db *gorm.DB) RepositoryFactory {
	return &RepositoryFactoryImpl{
		db: db,
	}
}

// NewUnitOfWork is cheap; a UoW is meant to live for a single operation.
func (f *RepositoryFactoryImpl) NewUnitOfWork(ctx context.Context) UnitOfWork {
	return NewUnitOfWork(f.db)
}

func (f *RepositoryFactoryImpl) Ping(ctx context.Context) error {
	return database.Ping(ctx, f.db)
}
