package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/granobox/spool/internal/logging"
)

var (
	ErrConnectionFailed = errors.New("connection failed")
	ErrInvalidInterface = errors.New("invalid printer interface")
)

const (
	defaultTCPPort          = 9100
	defaultReadWriteTimeout = 10 * time.Second
)

type endpoint struct {
	network string
	address string
}

func (e endpoint) String() string {
	if e.network == "device" {
		return e.address
	}
	return e.network + "://" + e.address
}

// parseInterface accepts tcp://host[:port], host:port and device paths such as
// /dev/rfcomm0 or file:///dev/usb/lp0.
func parseInterface(iface string) (endpoint, error) {
	iface = strings.TrimSpace(iface)
	switch {
	case iface == "":
		return endpoint{}, ErrInvalidInterface
	case strings.HasPrefix(iface, "tcp://"):
		addr := strings.TrimPrefix(iface, "tcp://")
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, fmt.Sprint(defaultTCPPort))
		}
		return endpoint{network: "tcp", address: addr}, nil
	case strings.HasPrefix(iface, "file://"):
		return endpoint{network: "device", address: strings.TrimPrefix(iface, "file://")}, nil
	case strings.HasPrefix(iface, "/"):
		return endpoint{network: "device", address: iface}, nil
	}

	if _, _, err := net.SplitHostPort(iface); err == nil {
		return endpoint{network: "tcp", address: iface}, nil
	}
	return endpoint{}, fmt.Errorf("%w: %q", ErrInvalidInterface, iface)
}

type PrinterManagerOptions struct {
	ConnectionTimeout time.Duration
	Logger            *zap.Logger
}

// PrinterManager is the driver that renders ESC/POS and writes it to network
// or device-file printers. Connections are cached per endpoint and redialed
// once when a write fails.
type PrinterManager struct {
	timeout     time.Duration
	logger      *zap.Logger
	connections map[string]io.WriteCloser
	mu          sync.Mutex

	dial       func(ctx context.Context, network, address string) (net.Conn, error)
	openDevice func(path string) (io.WriteCloser, error)
}

func NewPrinterManager(opts PrinterManagerOptions) *PrinterManager {
	timeout := opts.ConnectionTimeout
	if timeout <= 0 {
		timeout = defaultReadWriteTimeout
	}

	dialer := &net.Dialer{Timeout: timeout}
	return &PrinterManager{
		timeout:     timeout,
		logger:      logging.OrNop(opts.Logger).With(zap.String("component", "printer")),
		connections: make(map[string]io.WriteCloser),
		dial:        dialer.DialContext,
		openDevice: func(path string) (io.WriteCloser, error) {
			return os.OpenFile(path, os.O_WRONLY, 0)
		},
	}
}

// Print encodes and sends one job. Encoding problems are returned as errors;
// an unreachable or failing printer yields (false, nil).
func (pm *PrinterManager) Print(ctx context.Context, commands []Command, cfg PrinterConfig) (bool, error) {
	encoder, err := NewEncoder(cfg)
	if err != nil {
		return false, err
	}
	payload, err := encoder.Encode(commands)
	if err != nil {
		return false, err
	}

	ep, err := parseInterface(cfg.Interface)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if err := pm.send(ctx, ep, payload); err != nil {
		pm.logger.Warn("printer write failed",
			zap.String("interface", ep.String()),
			zap.Error(err))
		return false, nil
	}

	return true, nil
}

func (pm *PrinterManager) send(ctx context.Context, ep endpoint, payload []byte) error {
	conn, err := pm.connect(ctx, ep)
	if err != nil {
		return err
	}

	if err := pm.write(ctx, conn, payload); err == nil {
		return nil
	}

	conn, err = pm.reconnect(ctx, ep)
	if err != nil {
		return err
	}
	if err := pm.write(ctx, conn, payload); err != nil {
		pm.disconnect(ep)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

func (pm *PrinterManager) write(ctx context.Context, w io.WriteCloser, payload []byte) error {
	if conn, ok := w.(net.Conn); ok {
		deadline := time.Now().Add(pm.timeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		_ = conn.SetWriteDeadline(deadline)
	}
	_, err := w.Write(payload)
	return err
}

func (pm *PrinterManager) connect(ctx context.Context, ep endpoint) (io.WriteCloser, error) {
	key := ep.String()
	if conn, ok := pm.connections[key]; ok {
		return conn, nil
	}

	var (
		conn io.WriteCloser
		err  error
	)
	if ep.network == "device" {
		conn, err = pm.openDevice(ep.address)
	} else {
		conn, err = pm.dial(ctx, ep.network, ep.address)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	pm.connections[key] = conn
	pm.logger.Debug("printer connected", zap.String("interface", key))
	return conn, nil
}

func (pm *PrinterManager) disconnect(ep endpoint) {
	key := ep.String()
	if conn, ok := pm.connections[key]; ok {
		conn.Close()
		delete(pm.connections, key)
	}
}

func (pm *PrinterManager) reconnect(ctx context.Context, ep endpoint) (io.WriteCloser, error) {
	pm.disconnect(ep)
	return pm.connect(ctx, ep)
}

// Close drops every cached connection.
func (pm *PrinterManager) Close() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for key, conn := range pm.connections {
		conn.Close()
		delete(pm.connections, key)
	}
}
