package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	err := c.AcquireMemory(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), c.MemoryUsage())

	err = c.AcquireMemory(context.Background(), 40)
	require.NoError(t, err)
	assert.Equal(t, int64(90), c.MemoryUsage())

	ok := c.TryAcquireMemory(20)
	assert.False(t, ok)
	assert.Equal(t, int64(90), c.MemoryUsage())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = c.AcquireMemory(ctx, 20)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())

	err = c.AcquireMemory(context.Background(), 20)
	require.NoError(t, err)
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 0})

	err := c.AcquireMemory(context.Background(), 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), c.MemoryUsage())

	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
}

func TestController_NilController(t *testing.T) {
	var c *Controller

	assert.True(t, c.TryAcquireMemory(1<<30))
	require.NoError(t, c.AcquireMemory(context.Background(), 1<<30))
	c.ReleaseMemory(1 << 30)
	assert.Equal(t, int64(0), c.MemoryUsage())
	require.NoError(t, c.AcquireIO(context.Background(), 1<<20))
}

func TestController_ExportSlots(t *testing.T) {
	c := NewController(Config{MaxExportWorkers: 2})

	require.NoError(t, c.AcquireExport(context.Background()))
	require.NoError(t, c.AcquireExport(context.Background()))
	assert.False(t, c.TryAcquireExport())

	c.ReleaseExport()
	assert.True(t, c.TryAcquireExport())
}

func TestController_IOThrottle(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	// Within the initial burst this should not block.
	start := time.Now()
	require.NoError(t, c.AcquireIO(context.Background(), 1024))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
