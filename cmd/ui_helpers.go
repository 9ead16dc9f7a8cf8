package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// startInlineSpinner starts a simple inline spinner animation on a single line.
// It displays rotating animation frames followed by the provided text, updating
// the same line in the terminal. The returned function stops the spinner and
// clears the line. Quiet mode disables it.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	if flagQuiet {
		return func() {}
	}
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}
