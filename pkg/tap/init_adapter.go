package tap

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/softpos/pkg/vendor"
)

// initWaiters are the caller intents one vendor initialization can serve.
// Any of them may be nil.
type initWaiters struct {
	connect *waiter[vendor.DeviceHandle]
	check   *waiter[bool]
	code    *waiter[string]
}

// initAdapter is the InitDelegate registered for one Initialize call.
//
// At most one terminal callback is acted on. OnInitFailed fails every registered
// waiter; resolving only the connect waiter there would leave the activation
// callers blocked forever.
type initAdapter struct {
	owner  string
	logger *logrus.Entry

	// onInitialized records the reported devices; onRetire clears the session slot.
	onInitialized func(devices []vendor.DeviceHandle)
	onRetire      func(a *initAdapter)

	mu         sync.Mutex
	waiters    initWaiters
	terminated bool
	retired    bool
}

func newInitAdapter(owner string, w initWaiters, logger *logrus.Entry) *initAdapter {
	return &initAdapter{
		owner:   owner,
		waiters: w,
		logger:  logger.WithField("adapter", "init"),
	}
}

// terminal marks the adapter as having seen its terminal event and returns the
// waiters registered at that moment. ok is false for a repeated terminal event.
func (a *initAdapter) terminal(event string) (w initWaiters, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.terminated || a.retired {
		a.logger.WithField("event", event).Debug("Ignoring event on finished init adapter")
		return initWaiters{}, false
	}
	a.terminated = true
	return a.waiters, true
}

func (a *initAdapter) OnActivationRequired(code string) {
	a.logger.WithField("code", code).Info("Vendor requires activation")

	w, ok := a.terminal("OnActivationRequired")
	if !ok {
		return
	}
	if w.check != nil {
		w.check.resolve(false)
	}
	if w.code != nil {
		w.code.resolve(code)
	}
	if w.connect != nil {
		w.connect.fail(ActivationRequired(code))
	}
	a.retire()
}

func (a *initAdapter) OnInitFailed(err error) {
	w, ok := a.terminal("OnInitFailed")
	if !ok {
		a.logger.WithError(err).Debug("Vendor initialization failed after terminal event")
		return
	}
	a.logger.WithError(err).WithFields(logrus.Fields{
		"check":   w.check != nil,
		"code":    w.code != nil,
		"connect": w.connect != nil,
	}).Warn("Vendor initialization failed")

	failure := InitializationFailed(err)
	if w.check != nil {
		w.check.fail(failure)
	}
	if w.code != nil {
		w.code.fail(failure)
	}
	if w.connect != nil {
		w.connect.fail(failure)
	}
	a.retire()
}

func (a *initAdapter) OnInitialized(devices []vendor.DeviceHandle) {
	a.logger.WithField("devices", len(devices)).Info("Vendor initialized")

	w, ok := a.terminal("OnInitialized")
	if !ok {
		return
	}
	if a.onInitialized != nil {
		a.onInitialized(devices)
	}

	switch {
	case w.check != nil:
		// Activation is all the check asks about; device count is irrelevant here.
		w.check.resolve(true)
		a.retire()
	case w.connect != nil && len(devices) == 0:
		w.connect.fail(NoAvailableDevice())
		a.retire()
	case w.connect != nil:
		w.connect.resolve(devices[0])
		a.retire()
	default:
		// A code-only adapter has nothing to resolve whatever the device count; its
		// caller's context bounds the wait.
		if w.code != nil {
			a.logger.Warn("Activation code requested but the device is already activated")
		}
	}
}

// cancel fails every still-registered waiter with err and retires the adapter.
func (a *initAdapter) cancel(err error) {
	a.mu.Lock()
	w := a.waiters
	a.mu.Unlock()

	if w.check != nil {
		w.check.fail(err)
	}
	if w.code != nil {
		w.code.fail(err)
	}
	if w.connect != nil {
		w.connect.fail(err)
	}
	a.retire()
}

// retire drops every waiter reference. Later callbacks become no-ops.
func (a *initAdapter) retire() {
	a.mu.Lock()
	if a.retired {
		a.mu.Unlock()
		return
	}
	a.retired = true
	a.waiters = initWaiters{}
	onRetire := a.onRetire
	a.mu.Unlock()

	a.logger.Debug("Init adapter retired")
	if onRetire != nil {
		onRetire(a)
	}
}

// live reports whether the adapter still holds an unresolved waiter.
func (a *initAdapter) live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.retired {
		return false
	}
	w := a.waiters
	return (w.check != nil && !w.check.resolved()) ||
		(w.code != nil && !w.code.resolved()) ||
		(w.connect != nil && !w.connect.resolved())
}
