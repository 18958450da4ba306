// Package discovery enumerates Bluetooth-paired devices through the host
// OS inventory tools and guesses which of them are printers.
package discovery

import (
	"errors"
	"fmt"
)

type DeviceType string

const (
	DeviceTypePrinter DeviceType = "printer"
	DeviceTypeUnknown DeviceType = "unknown"
)

type PrinterDevice struct {
	Address string     `json:"address"`
	Name    string     `json:"name"`
	Type    DeviceType `json:"type"`
	// Confirmed is set when the OS tool tagged the device as printer class.
	Confirmed bool `json:"confirmed"`
}

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrDiscoveryFailed     = errors.New("bluetooth discovery failed")
)

// DiscoveryError reports a failed inventory command together with a hint
// the operator can act on.
type DiscoveryError struct {
	Command    string
	Err        error
	Suggestion string
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *DiscoveryError) Unwrap() []error {
	return []error{ErrDiscoveryFailed, e.Err}
}
