package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	output []byte
	err    error
	block  bool
	calls  []string
}

func (s *stubRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	s.calls = append(s.calls, name)
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.output, s.err
}

func TestScannerUnsupportedPlatform(t *testing.T) {
	scanner := NewScanner(Options{GOOS: "plan9", Runner: &stubRunner{}})

	_, err := scanner.Scan(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = scanner.ListPaired(context.Background())
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.Empty(t, scanner.Platform())
}

func TestScannerLinuxFiltersPrinters(t *testing.T) {
	runner := &stubRunner{output: []byte("Device 00:11:22:33:44:55 POS-58\nDevice 10:20:30:40:50:60 Headphones\n")}
	scanner := NewScanner(Options{GOOS: "linux", Runner: runner})

	devices, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "POS-58", devices[0].Name)

	paired, err := scanner.ListPaired(context.Background())
	require.NoError(t, err)
	assert.Len(t, paired, 2)
	assert.Equal(t, []string{"bluetoothctl", "bluetoothctl"}, runner.calls)
}

func TestScannerRepeatedCallsAreStable(t *testing.T) {
	runner := &stubRunner{output: []byte(darwinSample)}
	scanner := NewScanner(Options{GOOS: "darwin", Runner: runner})

	first, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	second, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestScannerNoDevicesIsSuccess(t *testing.T) {
	scanner := NewScanner(Options{GOOS: "linux", Runner: &stubRunner{}})

	devices, err := scanner.Scan(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}

func TestScannerCommandFailure(t *testing.T) {
	cause := errors.New("exit status 1: org.bluez.Error.NotReady")
	scanner := NewScanner(Options{GOOS: "linux", Runner: &stubRunner{err: cause}})

	_, err := scanner.Scan(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscoveryFailed)
	assert.ErrorIs(t, err, cause)

	var discErr *DiscoveryError
	require.ErrorAs(t, err, &discErr)
	assert.Equal(t, "bluetoothctl devices", discErr.Command)
	assert.Contains(t, discErr.Error(), "NotReady")
	assert.NotEmpty(t, discErr.Suggestion)
}

func TestScannerTimeout(t *testing.T) {
	scanner := NewScanner(Options{GOOS: "darwin", Runner: &stubRunner{block: true}, Timeout: 20 * time.Millisecond})

	_, err := scanner.ListPaired(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscoveryFailed)
	assert.Contains(t, err.Error(), "timed out")
}

func TestStrategyFor(t *testing.T) {
	s, err := StrategyFor("darwin")
	require.NoError(t, err)
	name, args := s.ScanCommand()
	assert.Equal(t, "system_profiler", name)
	assert.Equal(t, []string{"SPBluetoothDataType"}, args)

	s, err = StrategyFor("linux")
	require.NoError(t, err)
	name, args = s.PairedCommand()
	assert.Equal(t, "bluetoothctl", name)
	assert.Equal(t, []string{"paired-devices"}, args)

	_, err = StrategyFor("windows")
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
}
