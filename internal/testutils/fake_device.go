package testutils

import (
	"sync"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srg/softpos/pkg/vendor"
)

// DefaultAwait bounds how long the Await helpers wait for a vendor call.
const DefaultAwait = 2 * time.Second

// InitCall records one Initialize call.
type InitCall struct {
	Mode     vendor.TransactionMode
	Delegate vendor.InitDelegate
}

// TransactionCall records one StartTransaction call.
type TransactionCall struct {
	Request   vendor.PaymentRequest
	Presenter vendor.ResultPresenter
}

// FakeDevice is a scripted vendor.Device. It records every call and never fires a
// callback on its own: tests take the recorded delegate and drive it.
//
//	dev := testutils.NewFakeDevice()
//	go func() { call := dev.AwaitInit(t); call.Delegate.OnInitialized(nil) }()
//	ok, err := session.IsActivated(ctx)
type FakeDevice struct {
	inits    chan InitCall
	connects chan vendor.DeviceDelegate
	txns     chan TransactionCall

	mu            sync.Mutex
	listener      vendor.Listener
	customization vendor.Customization
	host          vendor.Host
	deinits       int

	// Synchronous errors returned by the next calls.
	InitErr        error
	ConnectErr     error
	TransactionErr error
	DeinitErr      error
}

// NewFakeDevice creates a FakeDevice with room for 16 unconsumed calls of each kind.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{
		inits:    make(chan InitCall, 16),
		connects: make(chan vendor.DeviceDelegate, 16),
		txns:     make(chan TransactionCall, 16),
	}
}

func (f *FakeDevice) Initialize(mode vendor.TransactionMode, d vendor.InitDelegate) error {
	f.mu.Lock()
	err := f.InitErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.inits <- InitCall{Mode: mode, Delegate: d}
	return nil
}

func (f *FakeDevice) Connect(d vendor.DeviceDelegate) error {
	f.mu.Lock()
	err := f.ConnectErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.connects <- d
	return nil
}

func (f *FakeDevice) StartTransaction(req vendor.PaymentRequest, p vendor.ResultPresenter) error {
	f.mu.Lock()
	err := f.TransactionErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.txns <- TransactionCall{Request: req, Presenter: p}
	return nil
}

func (f *FakeDevice) Deinitialize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deinits++
	return f.DeinitErr
}

func (f *FakeDevice) SetListener(l vendor.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
}

func (f *FakeDevice) RegisterCustomization(c vendor.Customization) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customization = c
}

func (f *FakeDevice) SetHost(h vendor.Host) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.host = h
}

// Emit delivers an observability event to the registered listener, if any.
func (f *FakeDevice) Emit(e vendor.Event) {
	f.mu.Lock()
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l.OnEvent(e)
	}
}

func (f *FakeDevice) Customization() vendor.Customization {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.customization
}

func (f *FakeDevice) Host() vendor.Host {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host
}

func (f *FakeDevice) Deinits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deinits
}

// AwaitInit returns the next Initialize call or fails the test.
func (f *FakeDevice) AwaitInit(t require.TestingT) InitCall {
	select {
	case c := <-f.inits:
		return c
	case <-time.After(DefaultAwait):
		require.FailNow(t, "Initialize MUST be called")
		return InitCall{}
	}
}

// AwaitConnect returns the delegate of the next Connect call or fails the test.
func (f *FakeDevice) AwaitConnect(t require.TestingT) vendor.DeviceDelegate {
	select {
	case d := <-f.connects:
		return d
	case <-time.After(DefaultAwait):
		require.FailNow(t, "Connect MUST be called")
		return nil
	}
}

// AwaitTransaction returns the next StartTransaction call or fails the test.
func (f *FakeDevice) AwaitTransaction(t require.TestingT) TransactionCall {
	select {
	case c := <-f.txns:
		return c
	case <-time.After(DefaultAwait):
		require.FailNow(t, "StartTransaction MUST be called")
		return TransactionCall{}
	}
}

// NoPendingCalls reports whether every recorded call has been consumed.
func (f *FakeDevice) NoPendingCalls() bool {
	return len(f.inits) == 0 && len(f.connects) == 0 && len(f.txns) == 0
}
