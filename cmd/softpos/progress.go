package main

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/srg/softpos/pkg/tap"
	"github.com/srg/softpos/pkg/vendor"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// Phases shown while a payment flow runs.
const (
	phaseStarting    = "Starting"
	phaseActivating  = "Activating"
	phaseDiscovering = "Searching for reader"
	phaseConnecting  = "Connecting"
	phaseWaitingCard = "Tap card"
	phaseReading     = "Reading card"
	phaseAuthorizing = "Authorizing"
	phaseDone        = "Done"
)

// phaseFor maps a session event to a progress phase. ok is false for events
// that do not move the flow forward.
func phaseFor(e tap.Event) (phase string, ok bool) {
	if e.Kind != tap.EventVendor || e.Vendor == nil {
		if e.Kind == tap.EventOperationStarted && e.Op == "StartTransaction" {
			return phaseWaitingCard, true
		}
		return "", false
	}

	switch e.Vendor.Kind {
	case vendor.EventActivationStarting, vendor.EventActivationProgress, vendor.EventEducationalScreen:
		return phaseActivating, true
	case vendor.EventDiscovering:
		if e.Vendor.Searching {
			return phaseDiscovering, true
		}
		return phaseConnecting, true
	case vendor.EventLCDMessage, vendor.EventLCDConfirmation:
		return phaseWaitingCard, true
	case vendor.EventCardRead:
		if e.Vendor.Success {
			return phaseReading, true
		}
		return phaseWaitingCard, true
	case vendor.EventAuthorizationStarted:
		return phaseAuthorizing, true
	case vendor.EventResultDismissed, vendor.EventDeinitialized:
		return phaseDone, true
	}
	return "", false
}

// ProgressPrinter redraws one status line with the elapsed time.
//
//	p := NewProgressPrinter(os.Stdout, "Paying", phaseStarting, phaseDone)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use: Start at most once, Stop any number of times.
type ProgressPrinter struct {
	out        io.Writer
	prefix     string
	phase      atomic.Value // string
	stopPhases map[string]struct{}
	startTime  time.Time
	ticker     atomic.Pointer[time.Ticker]
	stopChan   chan struct{}
	done       chan struct{}
	started    atomic.Bool
}

// NewProgressPrinter creates a printer writing to out. Setting one of
// stopPhases through Callback stops it.
func NewProgressPrinter(out io.Writer, prefix string, phase string, stopPhases ...string) *ProgressPrinter {
	stopSet := make(map[string]struct{}, len(stopPhases))
	for _, p := range stopPhases {
		stopSet[p] = struct{}{}
	}
	p := &ProgressPrinter{
		out:        out,
		prefix:     prefix,
		stopPhases: stopSet,
	}
	p.phase.Store(phase)
	return p
}

// Start panics if called more than once.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}

	p.done = make(chan struct{})
	p.stopChan = make(chan struct{})
	p.startTime = time.Now()
	ticker := time.NewTicker(progressUpdateInterval)
	p.ticker.Store(ticker)

	fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, p.Phase())

	stop := p.stopChan
	go func() {
		defer close(p.done)
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				phase := p.Phase()
				if _, isStopPhase := p.stopPhases[phase]; isStopPhase {
					return
				}
				if seconds := int(time.Since(p.startTime).Seconds()); seconds > 0 {
					fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
				} else {
					fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
				}
			}
		}
	}()
}

// Phase returns the phase currently displayed.
func (p *ProgressPrinter) Phase() string {
	return p.phase.Load().(string)
}

// Callback returns a function that updates the phase. It is safe for concurrent use.
func (p *ProgressPrinter) Callback() func(phase string) {
	return func(phase string) {
		p.phase.Store(phase)
		if _, isStopPhase := p.stopPhases[phase]; isStopPhase {
			p.Stop()
		}
	}
}

// Stop clears the line. Only the first call has an effect.
func (p *ProgressPrinter) Stop() {
	ticker := p.ticker.Swap(nil)
	if ticker == nil {
		return
	}

	ticker.Stop()
	close(p.stopChan)
	<-p.done

	fmt.Fprint(p.out, clearLineSequence)
}
