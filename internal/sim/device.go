// Package sim is a simulated card reader SDK. It answers vendor calls the way a
// real reader does, asynchronously and from its own goroutines, following a
// Scenario.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/srg/softpos/internal/groutine"
	"github.com/srg/softpos/pkg/vendor"
)

var (
	ErrNotInitialized = errors.New("sim: Initialize has not completed")
	ErrNotConnected   = errors.New("sim: no connected reader")
	ErrNoReader       = errors.New("sim: no reader in range")
)

// Device is a vendor.Device driven by a Scenario.
//
// Every callback is delivered on a named goroutine after the scenario's callback
// delay. Deinitialize bumps the generation so callbacks still in flight are dropped.
type Device struct {
	scenario Scenario
	logger   *logrus.Logger

	mu            sync.Mutex
	generation    uint64
	listener      vendor.Listener
	customization vendor.Customization
	host          vendor.Host
	initialized   bool
	delegate      vendor.DeviceDelegate
	connected     vendor.DeviceHandle

	readers *hashmap.Map[string, vendor.Handle]
}

// New creates a simulated reader. A nil logger uses logrus.New().
func New(s Scenario, logger *logrus.Logger) *Device {
	if logger == nil {
		logger = logrus.New()
	}
	return &Device{
		scenario: s,
		logger:   logger,
		host:     vendor.HostSandbox,
		readers:  hashmap.New[string, vendor.Handle](),
	}
}

func (d *Device) SetListener(l vendor.Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = l
}

func (d *Device) RegisterCustomization(c vendor.Customization) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customization = c
}

func (d *Device) SetHost(h vendor.Host) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.host = h
}

// Host returns the backend selected with SetHost.
func (d *Device) Host() vendor.Host {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.host
}

func (d *Device) Initialize(mode vendor.TransactionMode, delegate vendor.InitDelegate) error {
	if _, err := vendor.ParseTransactionMode(string(mode)); err != nil {
		return err
	}
	if delegate == nil {
		return errors.New("sim: nil init delegate")
	}

	s := d.scenario
	d.logger.WithFields(logrus.Fields{
		"mode":      mode,
		"activated": s.Activated,
	}).Debug("Simulated SDK initializing")

	d.deliver("sim-init", func() {
		switch {
		case s.InitError != "":
			delegate.OnInitFailed(errors.New(s.InitError))
		case !s.Activated:
			d.emit(vendor.Event{
				Kind:     vendor.EventActivationStarting,
				Terminal: &vendor.TerminalInfo{TerminalID: "SIM-" + s.ActivationCode, MerchantID: "SIM"},
			})
			d.emit(vendor.Event{Kind: vendor.EventEducationalScreen, Message: "Relay the activation code to your provider"})
			delegate.OnActivationRequired(s.ActivationCode)
		default:
			handles := d.register(s.Devices)
			delegate.OnInitialized(handles)
		}
	})
	return nil
}

// register replaces the reader registry and returns the readers as handles, in
// scenario order.
func (d *Device) register(ids []string) []vendor.DeviceHandle {
	readers := hashmap.New[string, vendor.Handle]()
	handles := make([]vendor.DeviceHandle, 0, len(ids))
	for _, id := range ids {
		h := vendor.Handle{DeviceID: id, DeviceName: "Simulated reader " + id}
		readers.Set(id, h)
		handles = append(handles, h)
	}

	d.mu.Lock()
	d.readers = readers
	d.initialized = true
	d.mu.Unlock()
	return handles
}

func (d *Device) Connect(delegate vendor.DeviceDelegate) error {
	if delegate == nil {
		return errors.New("sim: nil device delegate")
	}

	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return ErrNotInitialized
	}
	d.delegate = delegate
	d.connected = nil
	readers := d.readers
	d.mu.Unlock()

	s := d.scenario
	d.deliver("sim-connect", func() {
		d.emit(vendor.Event{Kind: vendor.EventDiscovering, Searching: true})

		var target vendor.DeviceHandle
		for i, id := range s.Devices {
			h, ok := readers.Get(id)
			if !ok {
				continue
			}
			d.emit(vendor.Event{
				Kind:       vendor.EventDeviceDiscovered,
				Discovered: &vendor.DiscoverableDevice{ID: h.DeviceID, Name: h.DeviceName, RSSI: -40 - 5*i},
			})
			if target == nil {
				target = h
			}
		}
		d.emit(vendor.Event{Kind: vendor.EventDiscovering, Searching: false})

		switch {
		case target == nil:
			delegate.OnConnectionFailed(nil, ErrNoReader)
		case s.ConnectError != "":
			delegate.OnConnectionFailed(target, errors.New(s.ConnectError))
		default:
			d.mu.Lock()
			if d.delegate == delegate {
				d.connected = target
			}
			d.mu.Unlock()
			delegate.OnConnected(target)
		}
	})
	return nil
}

func (d *Device) StartTransaction(req vendor.PaymentRequest, p vendor.ResultPresenter) error {
	d.mu.Lock()
	delegate, reader := d.delegate, d.connected
	custom, host := d.customization, d.host
	d.mu.Unlock()

	if delegate == nil || reader == nil {
		return ErrNotConnected
	}

	s := d.scenario
	log := d.logger.WithFields(logrus.Fields{
		"device":   reader.Name(),
		"amount":   req.Amount.StringFixed(2),
		"currency": req.CurrencyCode,
	})
	log.Debug("Simulated transaction starting")

	d.deliver("sim-transaction", func() {
		result := vendor.PaymentResult{
			TransactionID: s.Transaction.TransactionID,
			Fields: map[string]string{
				"amount":   req.Amount.StringFixed(2),
				"currency": req.CurrencyCode,
				"host":     string(host),
			},
		}
		if result.TransactionID == "" {
			result.TransactionID = uuid.NewString()
		}

		if !d.readCard(reader, custom, s.TimeoutsBeforeSuccess) {
			result.ResponseCode = "TO"
			result.ResponseMessage = "Card read timed out"
			log.WithField("transaction_id", result.TransactionID).Debug("Simulated card read timed out")
			delegate.OnTransactionFailed(result)
			d.dismiss(p)
			return
		}

		d.emit(vendor.Event{Kind: vendor.EventAuthorizationStarted, Device: reader})

		o := s.Transaction
		result.ResponseCode = o.ResponseCode
		result.ResponseMessage = o.ResponseMessage
		if o.Error != "" {
			result.ResponseCode, result.ResponseMessage = "", ""
			result.Err = errors.New(o.Error)
		}

		if o.Approved() {
			delegate.OnTransactionCompleted(result)
		} else {
			delegate.OnTransactionFailed(result)
		}
		d.dismiss(p)
	})
	return nil
}

// readCard emits the card read events and reports whether the read succeeded.
// A timed-out read is retried only when the customization asks for it.
func (d *Device) readCard(reader vendor.DeviceHandle, custom vendor.Customization, timeouts int) bool {
	d.emit(vendor.Event{Kind: vendor.EventLCDMessage, Device: reader, Message: "Present card"})

	for ; timeouts > 0; timeouts-- {
		msg := "Card read timed out"
		if custom != nil {
			msg = custom.CardReaderMessage(vendor.CodeCardReadTimeout, msg)
		}
		d.emit(vendor.Event{Kind: vendor.EventCardRead, Device: reader, Success: false, Message: msg})

		if custom == nil || !custom.ShouldRetryIfTimeout() {
			return false
		}
		d.emit(vendor.Event{Kind: vendor.EventLCDMessage, Device: reader, Message: "Present card again"})
	}

	read := vendor.Event{Kind: vendor.EventCardRead, Device: reader, Success: true, Message: "Done"}
	if custom != nil {
		read.Message = custom.CardReadSuccessMessage()
		if custom.HideCardReadSuccessMessage() {
			read.Message = ""
		}
	}
	d.emit(read)
	return true
}

func (d *Device) dismiss(p vendor.ResultPresenter) {
	if p == nil {
		return
	}
	d.deliver("sim-dismiss", p.OnDismissed)
}

// Deinitialize drops the connection and every callback still in flight.
func (d *Device) Deinitialize() error {
	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.initialized = false
	d.delegate = nil
	d.connected = nil
	d.readers = hashmap.New[string, vendor.Handle]()
	d.mu.Unlock()

	d.logger.WithField("generation", gen).Debug("Simulated SDK deinitialized")
	d.emit(vendor.Event{Kind: vendor.EventDeinitialized})
	return nil
}

// deliver runs fn on a named goroutine after the callback delay, unless the
// device was deinitialized in between.
func (d *Device) deliver(name string, fn func()) {
	d.mu.Lock()
	gen := d.generation
	d.mu.Unlock()

	delay := d.scenario.CallbackDelay
	groutine.Go(context.Background(), fmt.Sprintf("%s-%d", name, gen), func(ctx context.Context) {
		if delay > 0 {
			time.Sleep(delay)
		}
		if !d.current(gen) {
			d.logger.WithField("goroutine", groutine.Name(ctx)).Debug("Dropping callback from a previous session")
			return
		}
		fn()
	})
}

func (d *Device) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation == gen
}

func (d *Device) emit(e vendor.Event) {
	d.mu.Lock()
	l := d.listener
	d.mu.Unlock()
	if l != nil {
		l.OnEvent(e)
	}
}
