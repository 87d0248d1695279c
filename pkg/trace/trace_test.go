package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	assert.Equal(t, "abc", FromContext(ctx))
	assert.Equal(t, "", FromContext(context.Background()))
}

func TestNewContextGeneratesDistinctIDs(t *testing.T) {
	a := FromContext(NewContext(context.Background()))
	b := FromContext(NewContext(context.Background()))
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
