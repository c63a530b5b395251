package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/softpos/internal/journal"
	"github.com/srg/softpos/internal/sim"
	"github.com/srg/softpos/pkg/config"
	"github.com/srg/softpos/pkg/tap"
	"github.com/srg/softpos/pkg/vendor"
)

// deviceFactory builds the vendor device for a command. Tests replace it.
var deviceFactory = func(cfg *config.Config, logger *logrus.Logger) (vendor.Device, error) {
	scenario := sim.DefaultScenario()
	if cfg.Scenario != "" {
		var err error
		if scenario, err = sim.LoadScenario(cfg.Scenario); err != nil {
			return nil, err
		}
	}
	return sim.New(scenario, logger), nil
}

// stdoutIsTerminal decides whether progress lines are drawn.
var stdoutIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// loadConfig reads --config over the defaults and applies --scenario.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if scenario, _ := cmd.Flags().GetString("scenario"); scenario != "" {
		cfg.Scenario = scenario
	}
	return cfg, nil
}

// runtime is the session of one command together with its event journal and
// progress line.
type runtime struct {
	cfg      *config.Config
	session  *tap.Session
	journal  *journal.Collector
	progress *ProgressPrinter

	closeOnce sync.Once
	closeErr  error
}

func openRuntime(cfg *config.Config, logger *logrus.Logger, progressPrefix string) (*runtime, error) {
	dev, err := deviceFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create card reader: %w", err)
	}

	rt := &runtime{
		cfg:     cfg,
		session: tap.NewSession(dev, cfg.SessionOptions(logger)...),
	}

	var onPhase func(string)
	if stdoutIsTerminal() {
		rt.progress = NewProgressPrinter(os.Stdout, progressPrefix, phaseStarting, phaseDone)
		rt.progress.Start()
		onPhase = rt.progress.Callback()
	}

	rt.journal, err = journal.NewCollector(rt.session.Events(), uint32(cfg.EventBuffer), func(e tap.Event) {
		if onPhase == nil {
			return
		}
		if phase, ok := phaseFor(e); ok {
			onPhase(phase)
		}
	})
	if err == nil {
		err = rt.journal.Start()
	}
	if err != nil {
		rt.stopProgress()
		_ = rt.session.Close()
		return nil, fmt.Errorf("failed to start event journal: %w", err)
	}
	return rt, nil
}

// withTimeout bounds one session operation.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}

func (r *runtime) stopProgress() {
	if r.progress != nil {
		r.progress.Stop()
	}
}

// Close deinitializes the session and waits for the journal to take the last events.
func (r *runtime) Close() error {
	r.closeOnce.Do(func() {
		r.stopProgress()
		r.closeErr = r.session.Close()
		r.journal.Wait()
	})
	return r.closeErr
}

// writeJournal closes the runtime and prints every buffered event.
func (r *runtime) writeJournal(w io.Writer) error {
	_ = r.Close()
	lines, err := r.journal.Lines()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Event journal:")
	for _, line := range lines {
		fmt.Fprintf(w, "  %s\n", line)
	}
	return nil
}
