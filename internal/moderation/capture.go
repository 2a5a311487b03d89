package moderation

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
)

const (
	// per stream cap of captured analyzer output
	maxCapture = 1 << 20
	// longer lines are cut in the debug log
	maxLogLine = 4096
)

// capture collects output of the analyzer up to a limit and logs
// every complete line at debug level.
type capture struct {
	ctx    context.Context
	stream string
	limit  int

	mx        sync.Mutex
	buf       bytes.Buffer
	line      []byte
	truncated bool
}

func newCapture(ctx context.Context, stream string, limit int) *capture {
	return &capture{ctx: ctx, stream: stream, limit: limit}
}

func (c *capture) Write(p []byte) (int, error) {
	c.mx.Lock()
	defer c.mx.Unlock()
	n := len(p)

	room := c.limit - c.buf.Len()
	switch {
	case room >= len(p):
		c.buf.Write(p)
	case room > 0:
		c.buf.Write(p[:room])
		c.truncated = true
	default:
		c.truncated = true
	}

	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			c.appendLine(p)
			break
		}
		c.appendLine(p[:i])
		c.logLine()
		p = p[i+1:]
	}
	return n, nil
}

func (c *capture) appendLine(p []byte) {
	if room := maxLogLine - len(c.line); room > 0 {
		c.line = append(c.line, p[:min(room, len(p))]...)
	}
}

func (c *capture) logLine() {
	slog.DebugContext(c.ctx, "analyzer output",
		"stream", c.stream,
		"line", string(bytes.TrimRight(c.line, "\r")),
	)
	c.line = c.line[:0]
}

// flush logs the last line not terminated by a newline
func (c *capture) flush() {
	c.mx.Lock()
	defer c.mx.Unlock()
	if len(c.line) > 0 {
		c.logLine()
	}
	if c.truncated {
		slog.WarnContext(c.ctx, "analyzer output truncated",
			"stream", c.stream,
			"limit", c.limit,
		)
	}
}

func (c *capture) String() string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.buf.String()
}

func (c *capture) Truncated() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.truncated
}
