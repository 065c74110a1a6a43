package database

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = pq.ErrorCode("23505")

// trapNoRowsErr substitutes a domain sentinel for sql.ErrNoRows.
func trapNoRowsErr(err, sentinel error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return sentinel
	}
	return err
}

// trapUniqueErr maps a unique violation on a known constraint to its domain
// sentinel; anything else passes through.
func trapUniqueErr(err error, constraints map[string]error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		if sentinel, ok := constraints[pqErr.Constraint]; ok {
			return sentinel
		}
	}
	return err
}
