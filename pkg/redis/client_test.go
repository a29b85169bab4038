package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClientAndCheck(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := NewClient(ctx, mr.Addr(), "", 0, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Check(ctx))

	mr.Close()
	assert.Error(t, c.Check(ctx))
}

func TestNewClientUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), addr, "", 0, zap.NewNop())
	assert.ErrorContains(t, err, "redis ping")
}
