package tui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// StatusWriter shows the current install stage on a single spinning line.
// When a new stage starts, the finished one is printed with its duration.
type StatusWriter struct {
	w          io.Writer
	mu         sync.Mutex
	message    string
	phaseStart time.Time
	tick       int
	done       chan struct{}
	stopped    bool
	paused     bool
}

// NewStatusWriter starts the spinner goroutine.
func NewStatusWriter(w io.Writer) *StatusWriter {
	sw := &StatusWriter{
		w:          w,
		phaseStart: time.Now(),
		done:       make(chan struct{}),
	}
	go sw.loop()
	return sw
}

// Update completes the current stage and starts msg.
func (sw *StatusWriter) Update(msg string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped {
		return
	}
	sw.finishLocked()
	sw.message = msg
	sw.phaseStart = time.Now()
	sw.paused = false
}

// Pause clears the spinner line until the next Update, leaving the terminal
// to an interactive prompt.
func (sw *StatusWriter) Pause() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.stopped || sw.paused {
		return
	}
	sw.finishLocked()
	sw.message = ""
	sw.paused = true
}

// Stop prints the last completed stage and stops the spinner.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.finishLocked()
	sw.stopped = true
	sw.mu.Unlock()
	close(sw.done)
}

func (sw *StatusWriter) finishLocked() {
	if sw.message == "" {
		return
	}
	elapsed := formatElapsed(time.Since(sw.phaseStart))
	fmt.Fprintf(sw.w, "\r\033[K%s %s %s\n", StatusStyle("ok").Render("✓"), sw.message, LabelStyle.Render("("+elapsed+")"))
}

func (sw *StatusWriter) loop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			if !sw.stopped && !sw.paused && sw.message != "" {
				frame := spinnerFrames[sw.tick%len(spinnerFrames)]
				sw.tick++
				fmt.Fprintf(sw.w, "\r\033[K%s %s (%s)", frame, sw.message, formatElapsed(time.Since(sw.phaseStart)))
			}
			sw.mu.Unlock()
		}
	}
}

// formatElapsed formats a duration for display in the status line.
func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

// PlainStatus prints one line per stage. It is used when output is not a
// terminal.
type PlainStatus struct {
	W io.Writer
}

func (p PlainStatus) Update(msg string) {
	fmt.Fprintf(p.W, "- %s\n", msg)
}
