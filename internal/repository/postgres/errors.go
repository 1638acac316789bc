package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// pq unique_violation
const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode
}
