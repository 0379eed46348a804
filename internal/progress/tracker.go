// Package progress renders a single-line terminal progress bar for
// interactive scans. Disabled renderers are no-ops, so JSON output and
// piped runs stay clean.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/apiward/apiward/pkg/types"
)

const barWidth = 30

// Renderer redraws one terminal line as endpoint results come in.
type Renderer struct {
	mu        sync.Mutex
	out       io.Writer
	enabled   bool
	startTime time.Time

	completed int
	total     int
	message   string
}

func NewRenderer(out io.Writer, enabled bool) *Renderer {
	return &Renderer{
		out:       out,
		enabled:   enabled,
		startTime: time.Now(),
	}
}

// Callback adapts the renderer to the scanner's progress hook.
func (r *Renderer) Callback() types.ProgressFunc {
	return r.Update
}

// Update records the latest scan position and redraws the line.
func (r *Renderer) Update(completed, total int, message string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.completed = completed
	r.total = total
	r.message = message
	r.render()
}

func (r *Renderer) render() {
	pct := 0
	if r.total > 0 {
		pct = (r.completed * 100) / r.total
	}
	if pct > 100 {
		pct = 100
	}

	filled := (pct * barWidth) / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	eta := "calculating"
	switch {
	case pct >= 100:
		eta = "done"
	case r.completed > 0:
		elapsed := time.Since(r.startTime)
		perEndpoint := elapsed / time.Duration(r.completed)
		eta = formatDuration(perEndpoint * time.Duration(r.total-r.completed))
	}

	fmt.Fprintf(r.out, "\r\033[K[%s] %3d%% (%d/%d) %s | ETA: %s",
		bar, pct, r.completed, r.total, truncate(r.message, 40), eta)
}

// Finish clears the progress line and prints the closing summary.
func (r *Renderer) Finish() {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprint(r.out, "\r\033[K")
	fmt.Fprintf(r.out, "✅ Scan completed in %s\n", formatDuration(time.Since(r.startTime)))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
