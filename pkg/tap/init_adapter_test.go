package tap

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/softpos/pkg/vendor"
)

func testEntry() *logrus.Entry {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(logger)
}

type initFixture struct {
	check   *waiter[bool]
	code    *waiter[string]
	connect *waiter[vendor.DeviceHandle]
	adapter *initAdapter

	mu       sync.Mutex
	recorded [][]vendor.DeviceHandle
	retired  int
}

// newInitFixture builds an adapter with the requested waiters: any of "check", "code", "connect".
func newInitFixture(with ...string) *initFixture {
	f := &initFixture{}
	var w initWaiters
	for _, name := range with {
		switch name {
		case "check":
			f.check = newWaiter[bool](FamilyActivation, "IsActivated")
			w.check = f.check
		case "code":
			f.code = newWaiter[string](FamilyActivation, "GetActivationCode")
			w.code = f.code
		case "connect":
			f.connect = newWaiter[vendor.DeviceHandle](FamilyConnect, "InitializeDevice")
			w.connect = f.connect
		}
	}
	f.adapter = newInitAdapter("test", w, testEntry())
	f.adapter.onInitialized = func(d []vendor.DeviceHandle) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.recorded = append(f.recorded, d)
	}
	f.adapter.onRetire = func(*initAdapter) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.retired++
	}
	return f
}

func (f *initFixture) retiredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retired
}

func TestInitAdapter_ActivationRequired(t *testing.T) {
	// GOAL: Verify one activation-required event answers the check and the code waiter
	//
	// TEST SCENARIO: Check and code waiters registered → OnActivationRequired("ABC123") → false and "ABC123"

	f := newInitFixture("check", "code")

	f.adapter.OnActivationRequired("ABC123")

	activated, err := f.check.wait(context.Background())
	require.NoError(t, err)
	assert.False(t, activated, "check waiter MUST resolve false")

	code, err := f.code.wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ABC123", code, "code waiter MUST receive the activation code")

	assert.Equal(t, 1, f.retiredCount(), "adapter MUST retire once")
	assert.False(t, f.adapter.live())
}

func TestInitAdapter_ActivationRequiredFailsConnect(t *testing.T) {
	f := newInitFixture("connect")

	f.adapter.OnActivationRequired("ABC123")

	_, err := f.connect.wait(context.Background())
	require.ErrorIs(t, err, ErrActivationRequired)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "ABC123", terr.Code, "connect failure MUST carry the activation code")
}

func TestInitAdapter_InitFailedFailsEveryWaiter(t *testing.T) {
	// GOAL: Verify an initialization failure reaches all registered callers
	//
	// TEST SCENARIO: Check, code and connect waiters → OnInitFailed → all three fail with InitializationFailed

	f := newInitFixture("check", "code", "connect")
	cause := errors.New("sdk unavailable")

	f.adapter.OnInitFailed(cause)

	_, checkErr := f.check.wait(context.Background())
	_, codeErr := f.code.wait(context.Background())
	_, connectErr := f.connect.wait(context.Background())

	for name, err := range map[string]error{"check": checkErr, "code": codeErr, "connect": connectErr} {
		assert.ErrorIs(t, err, ErrInitializationFailed, "%s waiter MUST fail with InitializationFailed", name)
		assert.ErrorIs(t, err, cause, "%s waiter MUST carry the vendor cause", name)
	}
	assert.False(t, f.adapter.live(), "no waiter MUST remain pending after OnInitFailed")
}

func TestInitAdapter_InitFailedConnectOnlyVariantRejected(t *testing.T) {
	// GOAL: Pin the divergence between the two init-failure behaviours: failing only the
	// connect waiter is the rejected variant because it strands activation callers
	//
	// TEST SCENARIO: Build the connect-only outcome by hand → check and code stay pending;
	// the adapter's real OnInitFailed on the same waiters → nothing stays pending

	cause := errors.New("sdk unavailable")

	rejected := newInitFixture("check", "code", "connect")
	rejected.connect.fail(InitializationFailed(cause))
	assert.False(t, rejected.check.resolved(), "connect-only variant leaves the check waiter pending")
	assert.False(t, rejected.code.resolved(), "connect-only variant leaves the code waiter pending")
	assert.True(t, rejected.adapter.live(), "connect-only variant leaves the adapter live")

	adopted := newInitFixture("check", "code", "connect")
	adopted.adapter.OnInitFailed(cause)
	assert.True(t, adopted.check.resolved(), "OnInitFailed MUST settle the check waiter")
	assert.True(t, adopted.code.resolved(), "OnInitFailed MUST settle the code waiter")
	assert.True(t, adopted.connect.resolved(), "OnInitFailed MUST settle the connect waiter")
	assert.False(t, adopted.adapter.live(), "OnInitFailed MUST NOT diverge into the connect-only variant")
}

func TestInitAdapter_Initialized(t *testing.T) {
	d1 := vendor.Handle{DeviceID: "D1"}
	d2 := vendor.Handle{DeviceID: "D2"}

	t.Run("check resolves true regardless of device count", func(t *testing.T) {
		f := newInitFixture("check")

		f.adapter.OnInitialized(nil)

		activated, err := f.check.wait(context.Background())
		require.NoError(t, err)
		assert.True(t, activated)
		assert.Equal(t, 1, f.retiredCount())
	})

	t.Run("empty list with code only keeps the adapter installed", func(t *testing.T) {
		f := newInitFixture("code")

		f.adapter.OnInitialized([]vendor.DeviceHandle{})

		assert.False(t, f.code.resolved(), "code waiter MUST NOT be resolved by OnInitialized")
		assert.True(t, f.adapter.live(), "code-only adapter MUST stay installed like the non-empty case")
		assert.Equal(t, 0, f.retiredCount(), "slot MUST stay held while the caller waits")

		f.adapter.cancel(context.DeadlineExceeded)
		_, err := f.code.wait(context.Background())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, f.retiredCount())
	})

	t.Run("empty list with connect fails with NoAvailableDevice", func(t *testing.T) {
		f := newInitFixture("connect")

		f.adapter.OnInitialized([]vendor.DeviceHandle{})

		_, err := f.connect.wait(context.Background())
		assert.ErrorIs(t, err, ErrNoAvailableDevice)
	})

	t.Run("devices with connect resolves the first device", func(t *testing.T) {
		f := newInitFixture("connect")

		f.adapter.OnInitialized([]vendor.DeviceHandle{d1, d2})

		h, err := f.connect.wait(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "D1", h.ID())
	})

	t.Run("devices with code only keeps the adapter installed", func(t *testing.T) {
		f := newInitFixture("code")

		f.adapter.OnInitialized([]vendor.DeviceHandle{d1})

		assert.False(t, f.code.resolved())
		assert.True(t, f.adapter.live(), "code-only adapter MUST stay installed")
		assert.Equal(t, 0, f.retiredCount())

		f.adapter.cancel(context.Canceled)
		_, err := f.code.wait(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, f.retiredCount())
	})

	t.Run("device list is always recorded", func(t *testing.T) {
		f := newInitFixture("check")

		f.adapter.OnInitialized([]vendor.DeviceHandle{d1, d2})

		require.Len(t, f.recorded, 1)
		assert.Len(t, f.recorded[0], 2)
	})
}

func TestInitAdapter_IgnoresSecondTerminalEvent(t *testing.T) {
	// GOAL: Verify only the first terminal callback is acted on
	//
	// TEST SCENARIO: OnInitialized → OnInitFailed → OnActivationRequired → check stays true, retired once

	f := newInitFixture("check")

	f.adapter.OnInitialized(nil)
	f.adapter.OnInitFailed(errors.New("late"))
	f.adapter.OnActivationRequired("LATE")

	activated, err := f.check.wait(context.Background())
	require.NoError(t, err)
	assert.True(t, activated, "first terminal event MUST win")
	assert.Equal(t, 1, f.retiredCount(), "adapter MUST retire exactly once")
	assert.Len(t, f.recorded, 1, "later events MUST NOT record devices")
}

func TestInitAdapter_ConcurrentTerminalEvents(t *testing.T) {
	f := newInitFixture("check", "connect")

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 3 {
			case 0:
				f.adapter.OnInitialized([]vendor.DeviceHandle{vendor.Handle{DeviceID: "D1"}})
			case 1:
				f.adapter.OnInitFailed(errors.New("failed"))
			default:
				f.adapter.OnActivationRequired("CODE")
			}
		}(i)
	}
	wg.Wait()

	assert.True(t, f.check.resolved(), "check waiter MUST be settled")
	assert.Equal(t, 1, f.retiredCount(), "adapter MUST retire exactly once")
}

func TestInitAdapter_CancelAfterRetireIsNoop(t *testing.T) {
	f := newInitFixture("check")
	f.adapter.OnActivationRequired("ABC123")

	f.adapter.cancel(ErrClosed)

	activated, err := f.check.wait(context.Background())
	require.NoError(t, err)
	assert.False(t, activated)
	assert.Equal(t, 1, f.retiredCount())
}
