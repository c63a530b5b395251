package testutils

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// FakeDeviceSuite provides a reusable test suite with a scripted vendor device.
//
// Basic usage:
//
//	type SessionSuite struct {
//	    testutils.FakeDeviceSuite
//	}
//
//	func TestSessionSuite(t *testing.T) {
//	    suite.Run(t, new(SessionSuite))
//	}
//
//	func (s *SessionSuite) TestActivated() {
//	    go func() { s.Device.AwaitInit(s.T()).Delegate.OnInitialized(nil) }()
//	    ...
//	}
//
// A fresh FakeDevice is created before each test.
type FakeDeviceSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Device      *FakeDevice
	TestTimeout time.Duration
}

// SetupSuite initializes the logger once before all tests in the suite.
func (s *FakeDeviceSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	if s.TestTimeout == 0 {
		s.TestTimeout = 5 * time.Second
	}
	s.Logger.Debug("Suite setup completed")
}

// SetupTest replaces the fake device before each test.
func (s *FakeDeviceSuite) SetupTest() {
	s.Device = NewFakeDevice()
	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest drops the fake device. Unconsumed calls are reported at debug level.
func (s *FakeDeviceSuite) TearDownTest() {
	if s.Device != nil && !s.Device.NoPendingCalls() {
		s.Logger.Debug("Fake device has unconsumed calls")
	}
	s.Device = nil
}

// Context returns a context bounded by TestTimeout and cancelled when the test ends.
func (s *FakeDeviceSuite) Context() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), s.TestTimeout)
	s.T().Cleanup(cancel)
	return ctx
}
