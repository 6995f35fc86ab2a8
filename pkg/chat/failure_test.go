package chat

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestFailureKindSurvivesWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := errors.Wrap(NewFailure(RequestFailed, "Failed to fetch from API", cause), "send turn")

	assert.Equal(t, RequestFailed, KindOf(err))
	assert.True(t, IsKind(err, RequestFailed))
	assert.False(t, IsKind(err, ListFailed))
	assert.Equal(t, "Failed to fetch from API", MessageOf(err))
	assert.True(t, errors.Is(err, cause))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, FailureKind(""), KindOf(errors.New("boom")))
	assert.Equal(t, "boom", MessageOf(errors.New("boom")))
	assert.Equal(t, "", MessageOf(nil))
}
