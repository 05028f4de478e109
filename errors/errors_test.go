package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New("test error")
	require.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestSentinels(t *testing.T) {
	err := Wrap(ErrNotFound, "job j_123")
	assert.True(t, IsNotFoundError(err))
	assert.False(t, IsInvalidRequestError(err))

	err = NewInvalidRequestError("bad field %q", "cashComp")
	assert.True(t, IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "cashComp")
}

func TestWithDetail(t *testing.T) {
	err := New("base")
	err = WithDetail(err, "Job ID: j_123")
	err = WithDetail(err, "Row: row_4")

	details := GetAllDetails(err)
	require.Len(t, details, 2)
	assert.Contains(t, details, "Job ID: j_123")
}
