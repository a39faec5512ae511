package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// pq error codes: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pqUniqueViolation = "23505"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
