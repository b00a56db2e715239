package resource

import (
	"context"
	"io"
)

// ThrottledWriter applies the controller's IO limit to an io.Writer. Used
// when streaming snapshots to slow or shared destinations.
type ThrottledWriter struct {
	w   io.Writer
	rc  *Controller
	ctx context.Context
}

// NewThrottledWriter creates a new ThrottledWriter.
func NewThrottledWriter(ctx context.Context, w io.Writer, rc *Controller) *ThrottledWriter {
	return &ThrottledWriter{w: w, rc: rc, ctx: ctx}
}

func (w *ThrottledWriter) Write(p []byte) (n int, err error) {
	if err := w.rc.AcquireIO(w.ctx, len(p)); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

// ThrottledReader applies the controller's IO limit to an io.Reader.
type ThrottledReader struct {
	r   io.Reader
	rc  *Controller
	ctx context.Context
}

// NewThrottledReader creates a new ThrottledReader.
func NewThrottledReader(ctx context.Context, r io.Reader, rc *Controller) *ThrottledReader {
	return &ThrottledReader{r: r, rc: rc, ctx: ctx}
}

func (r *ThrottledReader) Read(p []byte) (n int, err error) {
	// The actual read may be shorter; charging the buffer size keeps the
	// limiter conservative.
	if err := r.rc.AcquireIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
