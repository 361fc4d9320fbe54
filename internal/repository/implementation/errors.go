package implementation

import (
	"errors"
	"fmt"
	"strings"

	"rag-agent-be/internal/repository/contract"

	"github.com/jackc/pgx/v5/pgconn"
)

// classifyError tags Postgres integrity violations (SQLSTATE class 23) so
// callers can stop retrying.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return fmt.Errorf("%w: %s (%s)", contract.ErrConstraintViolation, pgErr.Message, pgErr.ConstraintName)
	}
	return err
}
