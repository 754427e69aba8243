package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Spinner displays a progress animation while a request is in flight.
// On anything but a terminal it draws nothing and only prints the final
// Success or Fail line.
type Spinner struct {
	w        io.Writer
	message  string
	frames   []string
	interval time.Duration
	enabled  bool

	done     chan struct{}
	wg       sync.WaitGroup
	started  bool
	stopped  bool
	stopOnce sync.Once
}

// NewSpinner creates a new spinner writing to w.
func NewSpinner(w io.Writer, message string) *Spinner {
	return &Spinner{
		w:        w,
		message:  message,
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		interval: 100 * time.Millisecond,
		enabled:  IsTerminal(w),
		done:     make(chan struct{}),
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start starts the animation. It is a no-op when output is not a terminal.
func (s *Spinner) Start() {
	if !s.enabled || s.started || s.stopped {
		return
	}
	s.started = true
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s %s", s.frames[i%len(s.frames)], s.message)
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the spinner and clears the line. Safe to call repeatedly.
func (s *Spinner) Stop() {
	s.finish("")
}

// Success stops the spinner with a success message.
func (s *Spinner) Success(message string) {
	s.finish("✓ " + message + "\n")
}

// Fail stops the spinner with a failure message.
func (s *Spinner) Fail(message string) {
	s.finish("✗ " + message + "\n")
}

func (s *Spinner) finish(line string) {
	s.stopOnce.Do(func() {
		s.stopped = true
		close(s.done)
		s.wg.Wait()
		if s.started {
			fmt.Fprint(s.w, "\r\033[K")
		}
		if line != "" {
			fmt.Fprint(s.w, line)
		}
	})
}
