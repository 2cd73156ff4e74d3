package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2025-01-10T08:00:00Z"})
	require.NoError(t, err)

	got, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", got.ID)
	assert.Equal(t, "2025-01-10T08:00:00Z", got.CreatedAt)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestTrim(t *testing.T) {
	rows := []int{5, 4, 3}
	kept, info, err := Trim(rows, 2, func(v int) Cursor { return Cursor{ID: strconv.Itoa(v)} })
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4}, kept)
	assert.True(t, info.HasMore)

	next, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "4", next.ID)

	kept, info, err = Trim(rows, 5, func(v int) Cursor { return Cursor{} })
	require.NoError(t, err)
	assert.Len(t, kept, 3)
	assert.False(t, info.HasMore)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 7, Pagination{PageSize: 7}.Limit())
}
