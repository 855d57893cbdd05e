package timeouts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithConnectTimeoutAppliesDefault(t *testing.T) {
	ctx, cancel := WithConnectTimeout(context.Background(), 0)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(DefaultConnectTimeout), deadline, time.Second)
}

func TestWithConnectTimeoutKeepsParentDeadline(t *testing.T) {
	parent, parentCancel := context.WithTimeout(context.Background(), time.Hour)
	defer parentCancel()

	ctx, cancel := WithConnectTimeout(parent, time.Second)
	defer cancel()

	assert.Equal(t, parent, ctx)
}

func TestWithStatementTimeout(t *testing.T) {
	ctx, cancel := WithStatementTimeout(context.Background(), 0)
	defer cancel()
	_, ok := ctx.Deadline()
	assert.False(t, ok, "non-positive timeout must not bound the context")

	ctx2, cancel2 := WithStatementTimeout(context.Background(), time.Hour)
	defer cancel2()
	deadline, ok := ctx2.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(MaxStatementTimeout), deadline, time.Second)
}
