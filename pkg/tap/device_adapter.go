package tap

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/softpos/pkg/vendor"
)

// deviceAdapter is the DeviceDelegate for one device connection.
//
// The connect waiter is set at construction and resolved once. The transaction
// waiter is replaced per transaction and cleared after each outcome.
type deviceAdapter struct {
	logger *logrus.Entry

	mu        sync.Mutex
	connect   *waiter[vendor.DeviceHandle]
	txn       *waiter[vendor.PaymentResult]
	device    vendor.DeviceHandle
	connected bool
}

func newDeviceAdapter(connect *waiter[vendor.DeviceHandle], logger *logrus.Entry) *deviceAdapter {
	return &deviceAdapter{
		connect: connect,
		logger:  logger.WithField("adapter", "device"),
	}
}

func (a *deviceAdapter) OnConnected(device vendor.DeviceHandle) {
	a.mu.Lock()
	w := a.connect
	a.connect = nil
	a.device = device
	a.connected = true
	a.mu.Unlock()

	entry := a.logger.WithField("device", handleName(device))
	if w == nil || !w.resolve(device) {
		entry.Debug("Connected with no pending connect waiter")
		return
	}
	entry.Info("Device connected")
}

func (a *deviceAdapter) OnConnectionFailed(device vendor.DeviceHandle, err error) {
	a.mu.Lock()
	w := a.connect
	a.connect = nil
	a.connected = false
	a.mu.Unlock()

	entry := a.logger.WithError(err).WithField("device", handleName(device))
	if w == nil || !w.fail(ConnectionFailed(device, err)) {
		entry.Debug("Connection failure with no pending connect waiter")
		return
	}
	entry.Warn("Device connection failed")
}

func (a *deviceAdapter) OnTransactionCompleted(result vendor.PaymentResult) {
	w := a.takeTransaction()

	entry := a.logger.WithField("transaction_id", result.TransactionID)
	if w == nil || !w.resolve(result) {
		entry.Debug("Transaction completed with no pending transaction waiter")
		return
	}
	entry.WithField("request_id", w.id).Info("Transaction completed")
}

func (a *deviceAdapter) OnTransactionFailed(result vendor.PaymentResult) {
	w := a.takeTransaction()

	entry := a.logger.WithFields(logrus.Fields{
		"transaction_id": result.TransactionID,
		"code":           result.ResponseCode,
		"message":        result.ResponseMessage,
	})
	if result.Err != nil {
		entry = entry.WithError(result.Err)
	}
	if w == nil || !w.fail(TransactionFailed(result)) {
		entry.Debug("Transaction failure with no pending transaction waiter")
		return
	}
	entry.WithField("request_id", w.id).Warn("Transaction failed")
}

func (a *deviceAdapter) takeTransaction() *waiter[vendor.PaymentResult] {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.txn
	a.txn = nil
	return w
}

// installTransaction makes w the pending transaction waiter and returns the one it replaced.
func (a *deviceAdapter) installTransaction(w *waiter[vendor.PaymentResult]) *waiter[vendor.PaymentResult] {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.txn
	a.txn = w
	return prev
}

// releaseTransaction clears the slot if it still holds w.
func (a *deviceAdapter) releaseTransaction(w *waiter[vendor.PaymentResult]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.txn == w {
		a.txn = nil
	}
}

// connecting reports whether the connect waiter is still unresolved.
func (a *deviceAdapter) connecting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connect != nil && !a.connect.resolved()
}

func (a *deviceAdapter) isConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

func (a *deviceAdapter) handle() vendor.DeviceHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}

// cancel fails both waiters with err and forgets the connection.
func (a *deviceAdapter) cancel(err error) {
	a.mu.Lock()
	conn, txn := a.connect, a.txn
	a.connect, a.txn = nil, nil
	a.connected = false
	a.mu.Unlock()

	if conn != nil {
		conn.fail(err)
	}
	if txn != nil {
		txn.fail(err)
	}
}

func handleName(h vendor.DeviceHandle) string {
	if h == nil {
		return ""
	}
	return h.Name()
}
