package runctl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActive(t *testing.T) {
	assert.True(t, Active(context.Background()))

	ctx, ctl := WithControl(context.Background())
	assert.True(t, Active(ctx))

	ctl.Stop()
	assert.False(t, Active(ctx))
	assert.NoError(t, ctx.Err(), "stop leaves in-flight calls alone")
}

func TestAbort(t *testing.T) {
	ctx, ctl := WithControl(context.Background())
	ctl.Abort()

	assert.False(t, Active(ctx))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.True(t, ctl.Stopped())
}

func TestActive_ParentCancelled(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, ctl := WithControl(parent)
	cancel()

	assert.False(t, Active(ctx))
	assert.False(t, ctl.Stopped())
}
