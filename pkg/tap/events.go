package tap

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/softpos/pkg/vendor"
)

// EventKind identifies a session event.
type EventKind string

const (
	EventOperationStarted   EventKind = "operation_started"
	EventOperationCompleted EventKind = "operation_completed"
	EventOperationFailed    EventKind = "operation_failed"
	EventVendor             EventKind = "vendor"
)

// Event is published on Session.Events. Vendor observability callbacks arrive as
// EventVendor with Vendor set; the other kinds track shim operations.
type Event struct {
	Kind      EventKind
	Op        string
	RequestID string
	Err       error
	Vendor    *vendor.Event
	At        time.Time
}

func (s *Session) publish(e Event) {
	e.At = time.Now()
	if dropped := s.events.Publish(e); dropped {
		s.logger.WithField("kind", e.Kind).Debug("Event feed full, dropped oldest event")
	}
}

func (s *Session) publishOp(kind EventKind, op, requestID string, err error) {
	s.publish(Event{Kind: kind, Op: op, RequestID: requestID, Err: err})
}

// vendorListener forwards vendor observability callbacks to the log and the event feed.
type vendorListener struct {
	s *Session
}

func (l vendorListener) OnEvent(e vendor.Event) {
	fields := logrus.Fields{"event": e.Kind}
	if e.Device != nil {
		fields["device"] = e.Device.Name()
	}
	if e.Message != "" {
		fields["message"] = e.Message
	}
	switch e.Kind {
	case vendor.EventActivationProgress:
		fields["completed"] = e.Completed
	case vendor.EventDiscovering:
		fields["searching"] = e.Searching
	case vendor.EventCardRead:
		fields["success"] = e.Success
	case vendor.EventDeviceDiscovered:
		if e.Discovered != nil {
			fields["discovered"] = e.Discovered.ID
		}
	case vendor.EventActivationStarting:
		if e.Terminal != nil {
			fields["terminal"] = e.Terminal.TerminalID
		}
	}
	l.s.logger.WithFields(fields).Debug("Vendor event")

	ev := e
	l.s.publish(Event{Kind: EventVendor, Vendor: &ev})
}

// dismissPresenter reports the SDK closing its result screen.
type dismissPresenter struct {
	s         *Session
	requestID string
	next      vendor.ResultPresenter
}

func (p dismissPresenter) OnDismissed() {
	p.s.logger.WithField("request_id", p.requestID).Info("Transaction result dismissed")
	p.s.publish(Event{
		Kind:      EventVendor,
		Op:        "StartTransaction",
		RequestID: p.requestID,
		Vendor:    &vendor.Event{Kind: vendor.EventResultDismissed},
	})
	if p.next != nil {
		p.next.OnDismissed()
	}
}
