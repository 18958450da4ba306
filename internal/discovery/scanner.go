package discovery

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/granobox/spool/internal/logging"
	"github.com/granobox/spool/internal/metrics"
)

const DefaultTimeout = 30 * time.Second

type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execCommandRunner struct{}

func (execCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}

type Options struct {
	// GOOS selects the strategy; empty means the host OS.
	GOOS    string
	Runner  CommandRunner
	Timeout time.Duration
	Logger  *zap.Logger
}

// Scanner runs discovery for one platform. It holds no state between calls.
type Scanner struct {
	strategy Strategy
	err      error
	runner   CommandRunner
	timeout  time.Duration
	logger   *zap.Logger
}

func NewScanner(opts Options) *Scanner {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	runner := opts.Runner
	if runner == nil {
		runner = execCommandRunner{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	strategy, err := StrategyFor(goos)
	return &Scanner{
		strategy: strategy,
		err:      err,
		runner:   runner,
		timeout:  timeout,
		logger:   logging.OrNop(opts.Logger).With(zap.String("component", "discovery"), zap.String("platform", goos)),
	}
}

// Scan returns paired devices that look like printers.
func (s *Scanner) Scan(ctx context.Context) ([]PrinterDevice, error) {
	if s.err != nil {
		return nil, s.err
	}
	name, args := s.strategy.ScanCommand()
	devices, err := s.run(ctx, "scan", name, args)
	if err != nil {
		return nil, err
	}
	return FilterPrinters(devices), nil
}

// ListPaired returns every paired device with an address, printer or not.
func (s *Scanner) ListPaired(ctx context.Context) ([]PrinterDevice, error) {
	if s.err != nil {
		return nil, s.err
	}
	name, args := s.strategy.PairedCommand()
	return s.run(ctx, "paired", name, args)
}

func (s *Scanner) run(ctx context.Context, mode, name string, args []string) ([]PrinterDevice, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	command := strings.Join(append([]string{name}, args...), " ")
	start := time.Now()
	output, err := s.runner.Output(runCtx, name, args...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", s.timeout)
		}
		metrics.DiscoveryRunsTotal.WithLabelValues(mode, "error").Inc()
		s.logger.Warn("discovery command failed",
			zap.String("command", command),
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)))
		return nil, &DiscoveryError{
			Command:    command,
			Err:        err,
			Suggestion: s.strategy.Suggestion(),
		}
	}

	devices := s.strategy.Parse(string(output))
	if devices == nil {
		devices = []PrinterDevice{}
	}
	metrics.DiscoveryRunsTotal.WithLabelValues(mode, "ok").Inc()
	s.logger.Debug("discovery command finished",
		zap.String("command", command),
		zap.Int("devices", len(devices)),
		zap.Duration("elapsed", time.Since(start)))
	return devices, nil
}

func (s *Scanner) Platform() string {
	if s.strategy == nil {
		return ""
	}
	return s.strategy.Platform()
}
