package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// progressBar reports how many rows of a coverage map the workers have
// located so far. It redraws in place every 100ms; Increment may be called
// from any row worker.
type progressBar struct {
	out       io.Writer
	label     string
	unit      string
	total     int64
	processed atomic.Int64
	barWidth  int
	start     time.Time
	done      chan struct{}
	stopped   chan struct{}
	mu        sync.Mutex
}

func newProgressBar(out io.Writer, label, unit string, total int64) *progressBar {
	pb := &progressBar{
		out:      out,
		label:    label,
		unit:     unit,
		total:    total,
		barWidth: 30,
		start:    time.Now(),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go pb.run()
	return pb
}

// Increment counts one finished row.
func (pb *progressBar) Increment() {
	pb.processed.Add(1)
}

// Finish stops redrawing once every row worker has returned and leaves the
// final line on screen.
func (pb *progressBar) Finish() {
	close(pb.done)
	<-pb.stopped
	pb.draw()
	fmt.Fprint(pb.out, "\n")
}

func (pb *progressBar) run() {
	defer close(pb.stopped)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-pb.done:
			return
		case <-ticker.C:
			pb.draw()
		}
	}
}

func (pb *progressBar) draw() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	fmt.Fprintf(pb.out, "\r%s\033[K", pb.line(pb.processed.Load(), time.Since(pb.start)))
}

// line formats the bar, the row count and the row rate.
func (pb *progressBar) line(processed int64, elapsed time.Duration) string {
	var frac float64
	if pb.total > 0 {
		frac = min(float64(processed)/float64(pb.total), 1)
	}
	filled := int(float64(pb.barWidth) * frac)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", pb.barWidth-filled)

	rate := float64(0)
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(processed) / secs
	}
	return fmt.Sprintf("%s [%s] %3.0f%%  %d/%d %s  %.0f/s  %s",
		pb.label, bar, frac*100, processed, pb.total, pb.unit, rate, formatDuration(elapsed))
}

// formatDuration formats a duration concisely (e.g. "1m23s", "45s", "0s").
func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	return fmt.Sprintf("%dm%02ds", m, s)
}
