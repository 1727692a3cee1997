package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginateOffsets(t *testing.T) {
	cases := []struct {
		page   string
		offset int
	}{
		{"1", 0},
		{"2", 15},
		{"3", 30},
		{"10", 135},
	}
	for _, tc := range cases {
		offset, limit, err := Paginate(tc.page)
		require.NoError(t, err, "page %s", tc.page)
		assert.Equal(t, tc.offset, offset)
		assert.Equal(t, PageSize, limit)
	}
}

func TestPaginateRejectsInvalidPages(t *testing.T) {
	for _, page := range []string{"0", "-1", "", "abc", "1.5"} {
		_, _, err := Paginate(page)
		require.Error(t, err, "page %q", page)
		assert.EqualError(t, err, "Page must be greater than 0")
	}
}
