// Package tap turns a callback-driven card reader SDK into blocking calls.
//
// A Session owns at most one pending caller per operation family. Each operation
// registers an adapter with the vendor device, issues the vendor call and blocks
// until the adapter resolves the caller's waiter or the caller's context ends.
//
// Cancelling a context only releases the session's reference to the waiter. The
// vendor operation keeps running, and a callback that arrives afterwards is logged
// and ignored.
package tap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/softpos/internal/ringchan"
	"github.com/srg/softpos/pkg/vendor"
)

// InFlightPolicy decides what a second call does while one of the same family is
// pending. Transactions always supersede.
type InFlightPolicy string

const (
	// PolicyReject fails the new call with ErrOperationInFlight.
	PolicyReject InFlightPolicy = "reject"
	// PolicySupersede fails the pending call with ErrSuperseded and proceeds.
	PolicySupersede InFlightPolicy = "supersede"
)

// ParsePolicy parses a policy name case-insensitively.
func ParsePolicy(s string) (InFlightPolicy, error) {
	switch InFlightPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyReject:
		return PolicyReject, nil
	case PolicySupersede:
		return PolicySupersede, nil
	default:
		return "", fmt.Errorf("invalid in-flight policy: %q (must be reject or supersede)", s)
	}
}

// DefaultEventBuffer is the event feed capacity when none is configured.
const DefaultEventBuffer = 64

// Session is the single device session of a process. It is safe for concurrent use.
type Session struct {
	dev       vendor.Device
	logger    *logrus.Logger
	policy    InFlightPolicy
	mode      vendor.TransactionMode
	presenter vendor.ResultPresenter
	events    *ringchan.Ring[Event]

	mu          sync.Mutex
	init        *initAdapter
	conn        *deviceAdapter
	initialized bool
	devices     *hashmap.Map[string, vendor.DeviceHandle]
}

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	logger        *logrus.Logger
	policy        InFlightPolicy
	mode          vendor.TransactionMode
	eventBuffer   int
	presenter     vendor.ResultPresenter
	customization vendor.Customization
	host          vendor.Host
}

func WithLogger(l *logrus.Logger) Option { return func(o *sessionOptions) { o.logger = l } }

func WithPolicy(p InFlightPolicy) Option { return func(o *sessionOptions) { o.policy = p } }

// WithMode sets the mode used by IsActivated, GetActivationCode and by
// InitializeDevice when called with an empty mode.
func WithMode(m vendor.TransactionMode) Option { return func(o *sessionOptions) { o.mode = m } }

func WithEventBuffer(n int) Option { return func(o *sessionOptions) { o.eventBuffer = n } }

// WithPresenter chains p after the session's own result-dismissed handling.
func WithPresenter(p vendor.ResultPresenter) Option {
	return func(o *sessionOptions) { o.presenter = p }
}

// WithCustomization registers c with devices that implement vendor.Customizable.
func WithCustomization(c vendor.Customization) Option {
	return func(o *sessionOptions) { o.customization = c }
}

// WithHost selects the backend on devices that implement vendor.HostSelector.
func WithHost(h vendor.Host) Option { return func(o *sessionOptions) { o.host = h } }

// NewSession wraps dev. Observability events from devices implementing
// vendor.Observable are routed to the log and to Events.
func NewSession(dev vendor.Device, opts ...Option) *Session {
	o := sessionOptions{
		policy:      PolicyReject,
		mode:        vendor.ModeDevice,
		eventBuffer: DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.eventBuffer <= 0 {
		o.eventBuffer = DefaultEventBuffer
	}

	s := &Session{
		dev:       dev,
		logger:    o.logger,
		policy:    o.policy,
		mode:      o.mode,
		presenter: o.presenter,
		events:    ringchan.New[Event](o.eventBuffer),
		devices:   hashmap.New[string, vendor.DeviceHandle](),
	}

	if hs, ok := dev.(vendor.HostSelector); ok && o.host != "" {
		hs.SetHost(o.host)
	}
	if c, ok := dev.(vendor.Customizable); ok && o.customization != nil {
		c.RegisterCustomization(o.customization)
	}
	if obs, ok := dev.(vendor.Observable); ok {
		obs.SetListener(vendorListener{s: s})
	}

	s.logger.WithFields(logrus.Fields{
		"policy": s.policy,
		"mode":   s.mode,
	}).Debug("Session created")

	return s
}

// Events returns the observability feed. When the buffer is full the oldest event
// is dropped. The channel is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events.C()
}

// Devices returns the devices reported by the most recent successful
// initialization, sorted by id.
func (s *Session) Devices() []vendor.DeviceHandle {
	s.mu.Lock()
	devices := s.devices
	s.mu.Unlock()

	out := make([]vendor.DeviceHandle, 0, devices.Len())
	devices.Range(func(_ string, h vendor.DeviceHandle) bool {
		out = append(out, h)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Connected reports whether a device connection is established.
func (s *Session) Connected() bool {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	return conn != nil && conn.isConnected()
}

// IsActivated initializes the SDK and reports whether the merchant device is
// activated. It returns true as soon as the SDK reports initialization, whatever
// the number of devices, and false when the SDK asks for activation.
func (s *Session) IsActivated(ctx context.Context) (bool, error) {
	w := newWaiter[bool](FamilyActivation, "IsActivated")
	return runInit(ctx, s, w, initWaiters{check: w})
}

// GetActivationCode initializes the SDK and returns the code it reports when
// activation is required. If the device is already activated the SDK reports
// success instead, which this call does not treat as an outcome: it keeps waiting
// until ctx ends.
func (s *Session) GetActivationCode(ctx context.Context) (string, error) {
	w := newWaiter[string](FamilyActivation, "GetActivationCode")
	return runInit(ctx, s, w, initWaiters{code: w})
}

// InitializeDevice connects to a card reader and returns its handle.
//
// If the session has not seen a successful initialization since it was created or
// last deinitialized, or the last one reported no devices, the SDK is initialized
// first with mode (the session mode when empty). That phase fails with
// ErrNoAvailableDevice, ErrInitializationFailed or ErrActivationRequired before any
// connect is issued.
func (s *Session) InitializeDevice(ctx context.Context, mode vendor.TransactionMode) (vendor.DeviceHandle, error) {
	if mode == "" {
		mode = s.mode
	}

	s.mu.Lock()
	needInit := !s.initialized || s.devices.Len() == 0
	s.mu.Unlock()

	if needInit {
		w := newWaiter[vendor.DeviceHandle](FamilyConnect, "InitializeDevice")
		if _, err := runInitMode(ctx, s, mode, w, initWaiters{connect: w}); err != nil {
			return nil, err
		}
	}

	w := newWaiter[vendor.DeviceHandle](FamilyConnect, "InitializeDevice")
	log := s.opLogger(w.op, w.id)
	a := newDeviceAdapter(w, log)

	if err := s.installConn(a); err != nil {
		return nil, err
	}

	s.publishOp(EventOperationStarted, w.op, w.id, nil)
	log.Info("Connecting to device")
	if err := s.dev.Connect(a); err != nil {
		a.OnConnectionFailed(nil, err)
	}

	h, err := await(ctx, w, func() { s.releaseConn(a) })
	s.finish(w.op, w.id, err)
	return h, err
}

// StartTransaction runs a payment on the connected device and returns the
// approved result. A declined or errored payment fails with ErrTransactionFailed
// carrying the full result. A transaction still pending on the same connection is
// cancelled with ErrSuperseded first.
func (s *Session) StartTransaction(ctx context.Context, req TransactionRequest) (vendor.PaymentResult, error) {
	if err := req.Validate(); err != nil {
		return vendor.PaymentResult{}, err
	}

	s.mu.Lock()
	a := s.conn
	s.mu.Unlock()
	if a == nil || !a.isConnected() {
		return vendor.PaymentResult{}, ErrNotConnected
	}

	w := newWaiter[vendor.PaymentResult](FamilyTransaction, "StartTransaction")
	log := s.opLogger(w.op, w.id).WithFields(logrus.Fields{
		"amount":   req.Amount().String(),
		"currency": req.Currency(),
		"device":   handleName(a.handle()),
	})

	if prev := a.installTransaction(w); prev != nil && prev.fail(ErrSuperseded) {
		log.WithField("superseded", prev.id).Info("Cancelled pending transaction")
	}

	s.publishOp(EventOperationStarted, w.op, w.id, nil)
	log.Info("Starting transaction")

	presenter := dismissPresenter{s: s, requestID: w.id, next: s.presenter}
	if err := s.dev.StartTransaction(req.PaymentRequest(), presenter); err != nil {
		a.releaseTransaction(w)
		w.fail(TransactionFailed(vendor.PaymentResult{Err: err}))
	}

	res, err := await(ctx, w, func() { a.releaseTransaction(w) })
	s.finish(w.op, w.id, err)
	return res, err
}

// Deinitialize tears the vendor session down. Waiters still pending fail with
// ErrClosed and the session must be initialized again before the next connect.
func (s *Session) Deinitialize() error {
	s.mu.Lock()
	init, conn := s.init, s.conn
	s.init, s.conn = nil, nil
	s.initialized = false
	s.devices = hashmap.New[string, vendor.DeviceHandle]()
	s.mu.Unlock()

	if init != nil {
		init.cancel(ErrClosed)
	}
	if conn != nil {
		conn.cancel(ErrClosed)
	}

	s.logger.Info("Deinitializing vendor session")
	if err := s.dev.Deinitialize(); err != nil {
		s.logger.WithError(err).Warn("Vendor deinitialize failed")
		return fmt.Errorf("deinitialize: %w", err)
	}
	return nil
}

// Close deinitializes the session and closes the event feed.
func (s *Session) Close() error {
	err := s.Deinitialize()
	s.events.Close()
	return err
}

func runInit[T any](ctx context.Context, s *Session, w *waiter[T], ws initWaiters) (T, error) {
	return runInitMode(ctx, s, s.mode, w, ws)
}

func runInitMode[T any](ctx context.Context, s *Session, mode vendor.TransactionMode, w *waiter[T], ws initWaiters) (T, error) {
	log := s.opLogger(w.op, w.id)
	a := newInitAdapter(w.op, ws, log)
	a.onInitialized = s.recordDevices
	a.onRetire = s.releaseInit

	if err := s.installInit(a); err != nil {
		var zero T
		return zero, err
	}

	s.publishOp(EventOperationStarted, w.op, w.id, nil)
	log.WithField("mode", mode).Info("Initializing vendor SDK")
	if err := s.dev.Initialize(mode, a); err != nil {
		a.OnInitFailed(err)
	}

	v, err := await(ctx, w, a.retire)
	s.finish(w.op, w.id, err)
	return v, err
}

// await blocks on w. When ctx ends first, w is settled with the context error so a
// late vendor callback cannot resolve it, and release drops the slot reference. A
// vendor outcome that settles w before that wins over the context error.
func await[T any](ctx context.Context, w *waiter[T], release func()) (T, error) {
	v, err := w.wait(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		if !w.fail(err) {
			return w.val, w.err
		}
		release()
	}
	return v, err
}

func (s *Session) installInit(a *initAdapter) error {
	s.mu.Lock()
	prev := s.init
	if prev != nil && prev.live() {
		if s.policy == PolicyReject {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s pending", ErrOperationInFlight, prev.owner)
		}
	}
	s.init = a
	s.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrSuperseded)
	}
	return nil
}

// releaseInit clears the slot if it still holds a.
func (s *Session) releaseInit(a *initAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.init == a {
		s.init = nil
	}
}

func (s *Session) installConn(a *deviceAdapter) error {
	s.mu.Lock()
	prev := s.conn
	if prev != nil && prev.connecting() && s.policy == PolicyReject {
		s.mu.Unlock()
		return fmt.Errorf("%w: InitializeDevice pending", ErrOperationInFlight)
	}
	s.conn = a
	s.mu.Unlock()

	if prev != nil {
		prev.cancel(ErrSuperseded)
	}
	return nil
}

func (s *Session) releaseConn(a *deviceAdapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == a {
		s.conn = nil
	}
}

func (s *Session) recordDevices(devices []vendor.DeviceHandle) {
	m := hashmap.New[string, vendor.DeviceHandle]()
	for _, d := range devices {
		if d != nil {
			m.Set(d.ID(), d)
		}
	}

	s.mu.Lock()
	s.devices = m
	s.initialized = true
	s.mu.Unlock()
}

func (s *Session) opLogger(op, requestID string) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"op":         op,
		"request_id": requestID,
	})
}

func (s *Session) finish(op, requestID string, err error) {
	if err != nil {
		s.publishOp(EventOperationFailed, op, requestID, err)
		return
	}
	s.publishOp(EventOperationCompleted, op, requestID, nil)
}
