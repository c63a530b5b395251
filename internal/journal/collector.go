// Package journal keeps a bounded history of session events for post-mortem output.
package journal

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"

	"github.com/srg/softpos/pkg/tap"
	"github.com/srg/softpos/pkg/vendor"
)

// Metrics is updated with atomic operations and safe to read while collecting.
type Metrics struct {
	EventsCollected   int64
	EventsOverwritten int64
	ErrorsOccurred    int64
}

const (
	stateNotRunning uint32 = iota
	stateRunning
	stateStopping
)

// MaxBufferSize guards against accidental misconfiguration.
const MaxBufferSize uint32 = 64 * 1024

// Collector drains a session event feed into an overwrite-oldest ring buffer.
// An optional observer sees every event as it arrives, before it is buffered.
//
// All methods are thread-safe.
type Collector struct {
	events  <-chan tap.Event
	buffer  mpmc.RichOverlappedRingBuffer[tap.Event]
	observe func(tap.Event)

	stop    chan struct{}
	done    chan struct{}
	metrics Metrics
	state   uint32
}

// NewCollector creates a collector for events. observe may be nil.
func NewCollector(events <-chan tap.Event, bufferSize uint32, observe func(tap.Event)) (*Collector, error) {
	if events == nil {
		return nil, fmt.Errorf("event channel cannot be nil")
	}
	if bufferSize == 0 {
		return nil, fmt.Errorf("buffer size must be > 0")
	}
	if bufferSize > MaxBufferSize {
		return nil, fmt.Errorf("buffer size %d exceeds maximum %d", bufferSize, MaxBufferSize)
	}

	return &Collector{
		events:  events,
		buffer:  mpmc.NewOverlappedRingBuffer[tap.Event](bufferSize),
		observe: observe,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start begins collecting. It returns an error if the collector is already running.
func (c *Collector) Start() error {
	if !atomic.CompareAndSwapUint32(&c.state, stateNotRunning, stateRunning) {
		return fmt.Errorf("collector is not idle (state %d)", atomic.LoadUint32(&c.state))
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop, done := c.stop, c.done

	go func() {
		defer func() {
			atomic.StoreUint32(&c.state, stateNotRunning)
			close(done)
		}()
		for {
			select {
			case <-stop:
				return
			case e, ok := <-c.events:
				if !ok {
					return
				}
				if c.observe != nil {
					c.observe(e)
				}
				overwrites, err := c.buffer.EnqueueM(e)
				if err != nil {
					atomic.AddInt64(&c.metrics.ErrorsOccurred, 1)
					continue
				}
				atomic.AddInt64(&c.metrics.EventsOverwritten, int64(overwrites))
				atomic.AddInt64(&c.metrics.EventsCollected, 1)
			}
		}
	}()
	return nil
}

// Stop stops collecting and waits for the collecting goroutine to exit. Events
// already buffered stay available to Consume.
func (c *Collector) Stop() error {
	if atomic.CompareAndSwapUint32(&c.state, stateRunning, stateStopping) {
		close(c.stop)
	} else if atomic.LoadUint32(&c.state) == stateNotRunning {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		<-c.done
		return fmt.Errorf("stop exceeded 5s timeout")
	}
}

// Wait blocks until the event channel is closed and every event is buffered.
// It must only be called after Start.
func (c *Collector) Wait() {
	<-c.done
}

func (c *Collector) Metrics() Metrics {
	return Metrics{
		EventsCollected:   atomic.LoadInt64(&c.metrics.EventsCollected),
		EventsOverwritten: atomic.LoadInt64(&c.metrics.EventsOverwritten),
		ErrorsOccurred:    atomic.LoadInt64(&c.metrics.ErrorsOccurred),
	}
}

// ConsumerFunc consumes buffered events one at a time.
//
// For e != nil, return the zero value to keep going or a non-zero value to stop
// early with it. A final call with e == nil asks for the accumulated result.
type ConsumerFunc[T any] func(e *tap.Event) (T, error)

// Consume drains the buffer into consumer, oldest event first.
func Consume[T any](c *Collector, consumer ConsumerFunc[T]) (T, error) {
	for !c.buffer.IsEmpty() {
		e, err := c.buffer.Dequeue()
		if err != nil {
			var zero T
			return zero, fmt.Errorf("buffer dequeue error: %w", err)
		}

		result, err := consumer(&e)
		if err != nil {
			return result, err
		}
		if !reflect.ValueOf(&result).Elem().IsZero() {
			return result, nil
		}
	}
	return consumer(nil)
}

// LinesConsumerFunc renders each event as one line of text.
func LinesConsumerFunc() ConsumerFunc[[]string] {
	var lines []string
	return func(e *tap.Event) ([]string, error) {
		if e == nil {
			return lines, nil
		}
		lines = append(lines, Format(*e))
		return nil, nil
	}
}

// Lines drains the buffer and returns one formatted line per event.
func (c *Collector) Lines() ([]string, error) {
	return Consume(c, LinesConsumerFunc())
}

// Format renders e as "<time> <kind> <details>".
func Format(e tap.Event) string {
	var b strings.Builder
	b.WriteString(e.At.Format("15:04:05.000"))
	b.WriteByte(' ')

	if e.Kind == tap.EventVendor && e.Vendor != nil {
		b.WriteString(string(e.Vendor.Kind))
		if e.Vendor.Device != nil {
			fmt.Fprintf(&b, " device=%s", e.Vendor.Device.Name())
		}
		if e.Vendor.Message != "" {
			fmt.Fprintf(&b, " message=%q", e.Vendor.Message)
		}
		if e.Vendor.Discovered != nil {
			fmt.Fprintf(&b, " discovered=%s", e.Vendor.Discovered.ID)
		}
		if e.Vendor.Kind == vendor.EventCardRead {
			fmt.Fprintf(&b, " success=%t", e.Vendor.Success)
		}
		return b.String()
	}

	b.WriteString(string(e.Kind))
	if e.Op != "" {
		fmt.Fprintf(&b, " op=%s", e.Op)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " error=%q", e.Err.Error())
	}
	return b.String()
}
