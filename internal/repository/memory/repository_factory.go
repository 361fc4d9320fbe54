package memory

import (
	"context"

	"rag-agent-be/internal/repository/contract"
	"rag-agent-be/internal/repository/unitofwork"
)

// RepositoryFactory serves the in-memory stores through the same unit of
// work contract as the SQL stores. Transactions are no-ops: writes apply
// immediately and Rollback does not undo them.
type RepositoryFactory struct {
	Sessions *SessionRepository
	Turns    *TurnRepository
	Passages *PassageRepository
}

func NewRepositoryFactory() *RepositoryFactory {
	sessions := NewSessionRepository()
	return &RepositoryFactory{
		Sessions: sessions,
		Turns:    NewTurnRepository(sessions),
		Passages: NewPassageRepository(),
	}
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{factory: f}
}

func (f *RepositoryFactory) Ping(ctx context.Context) error {
	return ctx.Err()
}

type unitOfWork struct {
	factory *RepositoryFactory
}

func (u *unitOfWork) Begin(ctx context.Context) error { return ctx.Err() }
func (u *unitOfWork) Commit() error                   { return nil }
func (u *unitOfWork) Rollback() error                 { return nil }

func (u *unitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return u.factory.Sessions
}

func (u *unitOfWork) ChatTurnRepository() contract.ChatTurnRepository {
	return u.factory.Turns
}

func (u *unitOfWork) PassageRepository() contract.PassageRepository {
	return u.factory.Passages
}
