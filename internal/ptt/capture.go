package ptt

import (
	"bytes"
	"fmt"
	"time"
)

// CaptureBuffer accumulates one speaker's raw audio payloads between CTS
// grants. Start is non-nil iff the client currently holds CTS or did so
// since the last Flush.
type CaptureBuffer struct {
	start    *time.Time
	payloads [][]byte
}

// NewCaptureBuffer returns an empty buffer.
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{}
}

// Begin records the instant CTS was granted.
func (c *CaptureBuffer) Begin(now time.Time) {
	t := now
	c.start = &t
}

// Append records one received payload verbatim.
func (c *CaptureBuffer) Append(payload []byte) {
	c.payloads = append(c.payloads, payload)
}

// Flush resets the buffer and returns the accumulated filename and bytes.
// ok is false if Begin was never called (nothing to flush).
func (c *CaptureBuffer) Flush(key string) (filename string, data []byte, ok bool) {
	if c.start == nil {
		return "", nil, false
	}
	filename = fmt.Sprintf("%d-%s.wav", c.start.UnixMilli(), key)
	data = bytes.Join(c.payloads, nil)
	c.start = nil
	c.payloads = nil
	return filename, data, true
}
