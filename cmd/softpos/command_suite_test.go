package main

import (
	"bytes"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/suite"

	"github.com/srg/softpos/internal/testutils"
)

// CommandTestSuite runs softpos commands against the simulated reader.
// All cmd/softpos test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	originalNoColor  bool
	originalTerminal func() bool
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalNoColor = color.NoColor
	s.originalTerminal = stdoutIsTerminal

	color.NoColor = true
	stdoutIsTerminal = func() bool { return false }
}

func (s *CommandTestSuite) TearDownSuite() {
	color.NoColor = s.originalNoColor
	stdoutIsTerminal = s.originalTerminal
}

// SetupTest resets every flag global so one test's flags never leak into the next.
func (s *CommandTestSuite) SetupTest() {
	rootLogLevel = ""
	rootVerbose = false
	rootConfig = ""
	rootScenario = ""

	payCurrency = ""
	payMeta = nil
	payJSON = false
	payTrace = false

	activateJSON = false
	codesJSON = false

	for _, cmd := range []*cobra.Command{rootCmd, payCmd, activateCmd, codesCmd} {
		cmd.SilenceUsage = false
	}
}

// Scenario returns the absolute path of a fixture under testdata/scenarios.
func (s *CommandTestSuite) Scenario(name string) string {
	path, err := testutils.ProjectPath("testdata/scenarios/" + name)
	s.Require().NoError(err, "fixture path MUST resolve")
	return path
}

// ExecuteCommand runs the root command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.execute(rootCmd, args...)
}

func (s *CommandTestSuite) execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// CaptureStdout executes fn while capturing stdout, returns captured output.
// Stdout is restored even if fn panics.
func (s *CommandTestSuite) CaptureStdout(fn func()) string {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	s.Require().NoError(err, "pipe creation MUST succeed")
	os.Stdout = w
	defer func() { os.Stdout = oldStdout }()

	fn()

	w.Close()
	out, _ := io.ReadAll(r)
	return string(out)
}
