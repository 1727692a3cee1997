package utils

import (
	"strconv"

	"github.com/cryptoperk/cryptoperk-backend/shared/apperrors"
)

// PageSize is the fixed page size for all list endpoints
const PageSize = 15

// Paginate converts a 1-based page query parameter into offset/limit.
// page <= 0 or a non-numeric value is a validation error.
func Paginate(page string) (offset int, limit int, err error) {
	n, convErr := strconv.Atoi(page)
	if convErr != nil || n <= 0 {
		return 0, 0, apperrors.Validation("Page must be greater than 0")
	}
	return (n - 1) * PageSize, PageSize, nil
}
