package pipeline

import (
	"io"
	"sync/atomic"
)

// Progress receives cumulative transferred bytes against the known total.
// Callbacks run on the pipeline's reader path and must be fast.
type Progress func(transferred, total int64)

// Meter is a pass-through reader stage that counts bytes. It never alters,
// drops, or reorders the stream.
type Meter struct {
	r           io.Reader
	total       int64
	transferred atomic.Int64
	progress    Progress
}

// NewMeter wraps r with a metering stage reporting against total.
// progress may be nil.
func NewMeter(r io.Reader, total int64, progress Progress) *Meter {
	return &Meter{r: r, total: total, progress: progress}
}

// Read implements io.Reader.
func (m *Meter) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 {
		transferred := m.transferred.Add(int64(n))
		if m.progress != nil {
			m.progress(transferred, m.total)
		}
	}
	return n, err
}

// Transferred returns the cumulative byte count so far.
func (m *Meter) Transferred() int64 {
	return m.transferred.Load()
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}
