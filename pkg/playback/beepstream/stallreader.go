package beepstream

import (
	"io"
	"sync/atomic"
	"time"
)

// stallReader wraps the stream body and records when bytes last arrived,
// so the stall watchdog can tell a quiet network from a dead one.
type stallReader struct {
	rc       io.ReadCloser
	lastNano atomic.Int64
}

func newStallReader(rc io.ReadCloser) *stallReader {
	r := &stallReader{rc: rc}
	r.lastNano.Store(time.Now().UnixNano())
	return r
}

func (r *stallReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.lastNano.Store(time.Now().UnixNano())
	}
	return n, err
}

func (r *stallReader) Close() error {
	return r.rc.Close()
}

func (r *stallReader) lastRead() time.Time {
	return time.Unix(0, r.lastNano.Load())
}
