package sqlite

import (
	"errors"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"newsdesk/internal/newsdesk"
)

// Ensure Repo implements the Repository interface
var _ newsdesk.Repository = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

// SQLITE_CONSTRAINT_UNIQUE
const uniqueViolationCode = 2067

// Reports whether err is a sqlite unique-constraint violation.
func isUniqueViolation(err error) bool {
	sqliteErr := &sqlite.Error{}
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == uniqueViolationCode
}
