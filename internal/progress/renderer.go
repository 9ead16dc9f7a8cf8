// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package progress

import (
	"os"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
	"golang.org/x/term"

	"fhirq/cli/internal/scroll"
)

const tickInterval = 120 * time.Millisecond

// Renderer animates a State in a pterm area. On a non-terminal output or when
// disabled it only keeps the state.
type Renderer struct {
	state   *State
	enabled bool

	area *pterm.AreaPrinter
	stop chan struct{}
	wg   sync.WaitGroup
}

// Start begins rendering label. Rendering is skipped when quiet is set or stderr
// is not a terminal.
func Start(label, unit string, quiet bool) *Renderer {
	r := &Renderer{
		state:   NewState(label, unit),
		enabled: !quiet && term.IsTerminal(int(os.Stderr.Fd())),
		stop:    make(chan struct{}),
	}
	if !r.enabled {
		return r
	}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		r.enabled = false
		return r
	}
	r.area = area
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		t := time.NewTicker(tickInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				r.state.Tick()
				r.area.Update(r.state.Line())
			case <-r.stop:
				return
			}
		}
	}()
	return r
}

// State returns the tracked state.
func (r *Renderer) State() *State { return r.state }

// OnPage is a scroll.Options.OnPage callback.
func (r *Renderer) OnPage(st scroll.State) { r.state.Page(st) }

// OnPart is a multipart upload callback; the state counts parts.
func (r *Renderer) OnPart(part, total int) {
	r.state.SetTotal(total)
	r.state.Add(1)
}

// Stop removes the area and restores the cursor. When ok is set the summary line
// is printed.
func (r *Renderer) Stop(ok bool) {
	if r.enabled {
		close(r.stop)
		r.wg.Wait()
		_ = r.area.Stop()
		cursor.Show()
		r.enabled = false
	}
	if ok {
		pterm.Info.Println(r.state.Summary())
	}
}
