package progress

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUpdateRendersBarAndCounts(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Update(5, 10, "Scanned /api/users")

	out := buf.String()
	assert.Contains(t, out, " 50% (5/10)")
	assert.Contains(t, out, "Scanned /api/users")
	assert.Contains(t, out, "ETA:")
	assert.Contains(t, out, "█")
	assert.Contains(t, out, "░")
}

func TestUpdateHandlesZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Update(0, 0, "starting")
	assert.Contains(t, buf.String(), "  0% (0/0)")
}

func TestUpdateCompletedShowsDone(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Update(10, 10, "Scanned /last")
	assert.Contains(t, buf.String(), "100% (10/10)")
	assert.Contains(t, buf.String(), "ETA: done")
}

func TestDisabledRendererIsSilent(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)

	r.Update(1, 2, "quiet")
	r.Finish()
	assert.Empty(t, buf.String())
}

func TestFinishPrintsSummary(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	r.Update(2, 2, "Scanned /done")
	r.Finish()
	assert.Contains(t, buf.String(), "Scan completed in")
}

func TestCallbackFeedsRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	cb := r.Callback()
	cb(3, 4, "Scanned /via/callback")
	assert.Contains(t, buf.String(), "(3/4)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	long := truncate("a-very-long-endpoint-path-that-keeps-going", 20)
	assert.Len(t, long, 20)
	assert.Contains(t, long, "...")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "< 1s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), "input %s", tt.in)
	}
}
