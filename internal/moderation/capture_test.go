package moderation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapture(t *testing.T) {
	t.Parallel()
	c := newCapture(context.Background(), "stderr", 8)
	n, err := c.Write([]byte("0123"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.False(t, c.Truncated())

	n, err = c.Write([]byte("456789\nab"))
	require.NoError(t, err)
	require.Equal(t, 9, n)
	require.Equal(t, "01234567", c.String())
	require.True(t, c.Truncated())

	// lines are tracked independently of the cap
	require.Equal(t, "ab", string(c.line))
	c.flush()
	require.Empty(t, c.line)
}

func TestCapture_LongLine(t *testing.T) {
	t.Parallel()
	c := newCapture(context.Background(), "stdout", maxCapture)
	long := strings.Repeat("x", 2*maxLogLine)
	_, err := c.Write([]byte(long))
	require.NoError(t, err)
	require.Len(t, c.line, maxLogLine)
	require.Equal(t, long, c.String())
	_, err = c.Write([]byte("\n"))
	require.NoError(t, err)
	require.Empty(t, c.line)
}
