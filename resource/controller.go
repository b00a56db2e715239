// Package resource tracks the memory held by generation buffers and
// throttles snapshot IO.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes caps the bytes held by genotype and auxiliary
	// buffers across all generations. If 0, usage is tracked but not
	// limited.
	MemoryLimitBytes int64

	// MaxExportWorkers is the maximum number of concurrent snapshot
	// exports and imports. If 0, defaults to 1.
	MaxExportWorkers int64

	// IOLimitBytesPerSec throttles snapshot streaming. If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller enforces the configured limits. A nil *Controller is valid and
// enforces nothing.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	exportSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxExportWorkers <= 0 {
		cfg.MaxExportWorkers = 1
	}

	c := &Controller{
		cfg:       cfg,
		exportSem: semaphore.NewWeighted(cfg.MaxExportWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}

	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}

	return c
}

// AcquireMemory reserves buffer memory, blocking until it is available or
// ctx is canceled.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}

	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}

	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves buffer memory without blocking. Returns false
// if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}

	if c.memSem != nil {
		if !c.memSem.TryAcquire(bytes) {
			return false
		}
	}

	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory returns reserved buffer memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}

	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the bytes currently reserved.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireExport reserves a snapshot worker slot, blocking if all slots are
// busy.
func (c *Controller) AcquireExport(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.exportSem.Acquire(ctx, 1)
}

// TryAcquireExport reserves a snapshot worker slot without blocking.
func (c *Controller) TryAcquireExport() bool {
	if c == nil {
		return true
	}
	return c.exportSem.TryAcquire(1)
}

// ReleaseExport returns a snapshot worker slot.
func (c *Controller) ReleaseExport() {
	if c == nil {
		return
	}
	c.exportSem.Release(1)
}

// AcquireIO waits until the IO limit allows the specified number of bytes.
func (c *Controller) AcquireIO(ctx context.Context, bytes int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	return c.ioLimiter.WaitN(ctx, bytes)
}
