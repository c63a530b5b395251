package journal

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/softpos/pkg/tap"
	"github.com/srg/softpos/pkg/vendor"
)

type CollectorTestSuite struct {
	suite.Suite
}

func TestCollectorTestSuite(t *testing.T) {
	suite.Run(t, new(CollectorTestSuite))
}

func opEvent(kind tap.EventKind, op string, err error) tap.Event {
	return tap.Event{Kind: kind, Op: op, Err: err, At: time.Date(2024, 1, 2, 10, 11, 12, 0, time.UTC)}
}

func (suite *CollectorTestSuite) TestNewCollector_Validation() {
	ch := make(chan tap.Event)

	_, err := NewCollector(nil, 8, nil)
	suite.ErrorContains(err, "cannot be nil")

	_, err = NewCollector(ch, 0, nil)
	suite.ErrorContains(err, "must be > 0")

	_, err = NewCollector(ch, MaxBufferSize+1, nil)
	suite.ErrorContains(err, "exceeds maximum")
}

func (suite *CollectorTestSuite) TestCollectsUntilChannelCloses() {
	// GOAL: Verify every event reaches the observer and the buffer in order
	//
	// TEST SCENARIO: Send 3 events → close channel → Wait → lines in order, observer saw all three

	ch := make(chan tap.Event, 8)
	var mu sync.Mutex
	var observed []tap.EventKind
	c, err := NewCollector(ch, 16, func(e tap.Event) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, e.Kind)
	})
	suite.Require().NoError(err)
	suite.Require().NoError(c.Start())

	ch <- opEvent(tap.EventOperationStarted, "IsActivated", nil)
	ch <- tap.Event{Kind: tap.EventVendor, Vendor: &vendor.Event{
		Kind:    vendor.EventCardRead,
		Device:  vendor.Handle{DeviceID: "D1"},
		Message: "Done",
		Success: true,
	}}
	ch <- opEvent(tap.EventOperationFailed, "StartTransaction", errors.New("declined"))
	close(ch)
	c.Wait()

	lines, err := c.Lines()
	suite.Require().NoError(err)
	suite.Require().Len(lines, 3)
	suite.Equal("10:11:12.000 operation_started op=IsActivated", lines[0])
	suite.Contains(lines[1], `card_read device=D1 message="Done" success=true`)
	suite.Equal(`10:11:12.000 operation_failed op=StartTransaction error="declined"`, lines[2])

	suite.Len(observed, 3, "observer MUST see every event")
	suite.Equal(int64(3), c.Metrics().EventsCollected)
	suite.NoError(c.Stop(), "Stop after the channel closed MUST be a no-op")
}

func (suite *CollectorTestSuite) TestOverwritesOldest() {
	ch := make(chan tap.Event)
	c, err := NewCollector(ch, 4, nil)
	suite.Require().NoError(err)
	suite.Require().NoError(c.Start())

	for i := 0; i < 10; i++ {
		ch <- opEvent(tap.EventOperationStarted, fmt.Sprintf("op%d", i), nil)
	}
	close(ch)
	c.Wait()

	m := c.Metrics()
	suite.Equal(int64(10), m.EventsCollected)
	suite.Greater(m.EventsOverwritten, int64(0), "a full buffer MUST overwrite")

	lines, err := c.Lines()
	suite.Require().NoError(err)
	suite.Less(len(lines), 10)
	suite.Contains(lines[len(lines)-1], "op=op9", "newest event MUST be kept")
}

func (suite *CollectorTestSuite) TestStartStop() {
	ch := make(chan tap.Event)
	c, err := NewCollector(ch, 8, nil)
	suite.Require().NoError(err)

	suite.NoError(c.Stop(), "Stop before Start MUST be a no-op")
	suite.Require().NoError(c.Start())
	suite.Error(c.Start(), "second Start MUST fail")
	suite.NoError(c.Stop())
	suite.NoError(c.Stop())
	suite.Require().NoError(c.Start(), "collector MUST restart after Stop")
	suite.NoError(c.Stop())
}

func (suite *CollectorTestSuite) TestConsumeStopsEarly() {
	ch := make(chan tap.Event, 4)
	c, err := NewCollector(ch, 8, nil)
	suite.Require().NoError(err)
	suite.Require().NoError(c.Start())
	ch <- opEvent(tap.EventOperationStarted, "IsActivated", nil)
	ch <- opEvent(tap.EventOperationFailed, "InitializeDevice", errors.New("no device"))
	ch <- opEvent(tap.EventOperationStarted, "Deinitialize", nil)
	close(ch)
	c.Wait()

	firstFailure, err := Consume(c, func(e *tap.Event) (string, error) {
		if e != nil && e.Kind == tap.EventOperationFailed {
			return e.Op, nil
		}
		return "", nil
	})

	suite.Require().NoError(err)
	suite.Equal("InitializeDevice", firstFailure)
}
