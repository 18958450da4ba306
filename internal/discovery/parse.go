package discovery

import (
	"bufio"
	"regexp"
	"strings"
)

// darwinHeaders are section titles in system_profiler output that never
// name a device.
var darwinHeaders = map[string]bool{
	"bluetooth":                          true,
	"bluetooth controller":               true,
	"apple bluetooth software version":   true,
	"local device title":                 true,
	"connected":                          true,
	"not connected":                      true,
	"paired devices":                     true,
	"devices (paired, configured, etc.)": true,
	"services":                           true,
	"incoming serial ports":              true,
	"outgoing serial ports":              true,
	"hardware, features, and settings":   true,
	"paired, configured, etc.":           true,
}

// darwinFields are per-device keys; a bare "Address:" with no value is still
// a field, not a new device.
var darwinFields = map[string]bool{
	"address":          true,
	"minor type":       true,
	"major type":       true,
	"vendor id":        true,
	"product id":       true,
	"firmware version": true,
	"rssi":             true,
	"battery level":    true,
	"class of device":  true,
	"manufacturer":     true,
}

// ParseDarwin walks system_profiler SPBluetoothDataType output and returns
// every device block that carried an address, in output order.
func ParseDarwin(output string) []PrinterDevice {
	var (
		devices []PrinterDevice
		current *PrinterDevice
	)

	flush := func() {
		if current != nil && current.Address != "" {
			current.Type = inferType(current.Name, current.Confirmed)
			devices = append(devices, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}

		if strings.HasSuffix(line, ":") {
			name := strings.TrimSpace(strings.TrimSuffix(line, ":"))
			if current != nil && darwinFields[strings.ToLower(name)] {
				continue
			}
			flush()
			if name != "" && !darwinHeaders[strings.ToLower(name)] {
				current = &PrinterDevice{Name: name}
			}
			continue
		}

		if current == nil {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "address":
			current.Address = value
		case "minor type":
			if strings.Contains(strings.ToLower(value), "printer") {
				current.Confirmed = true
			}
		}
	}
	flush()

	return devices
}

var linuxDeviceLine = regexp.MustCompile(`\bDevice\s+([0-9A-Fa-f]{2}(?::[0-9A-Fa-f]{2}){5})\s+(.*\S)`)

// ParseLinux reads bluetoothctl "Device <MAC> <name>" lines. Each line
// stands on its own.
func ParseLinux(output string) []PrinterDevice {
	var devices []PrinterDevice

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		m := linuxDeviceLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[2])
		devices = append(devices, PrinterDevice{
			Address: strings.ToUpper(m[1]),
			Name:    name,
			Type:    inferType(name, false),
		})
	}

	return devices
}
