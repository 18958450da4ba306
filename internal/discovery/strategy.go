package discovery

import "fmt"

// Strategy is the per-OS variant of discovery: which inventory command to
// run and how to read its output.
type Strategy interface {
	Platform() string
	ScanCommand() (string, []string)
	PairedCommand() (string, []string)
	Parse(output string) []PrinterDevice
	Suggestion() string
}

type darwinStrategy struct{}

func (darwinStrategy) Platform() string { return "darwin" }

func (darwinStrategy) ScanCommand() (string, []string) {
	return "system_profiler", []string{"SPBluetoothDataType"}
}

func (darwinStrategy) PairedCommand() (string, []string) {
	return "system_profiler", []string{"SPBluetoothDataType"}
}

func (darwinStrategy) Parse(output string) []PrinterDevice { return ParseDarwin(output) }

func (darwinStrategy) Suggestion() string {
	return "Turn Bluetooth on and pair the printer in System Settings > Bluetooth, then scan again."
}

type linuxStrategy struct{}

func (linuxStrategy) Platform() string { return "linux" }

func (linuxStrategy) ScanCommand() (string, []string) {
	return "bluetoothctl", []string{"devices"}
}

func (linuxStrategy) PairedCommand() (string, []string) {
	return "bluetoothctl", []string{"paired-devices"}
}

func (linuxStrategy) Parse(output string) []PrinterDevice { return ParseLinux(output) }

func (linuxStrategy) Suggestion() string {
	return "Install bluez, start the bluetooth service (systemctl start bluetooth) and pair the printer with bluetoothctl."
}

// StrategyFor returns the discovery variant for a GOOS value.
func StrategyFor(goos string) (Strategy, error) {
	switch goos {
	case "darwin":
		return darwinStrategy{}, nil
	case "linux":
		return linuxStrategy{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, goos)
	}
}
