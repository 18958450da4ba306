package discovery

import "strings"

// printerTokens is matched case-insensitively as substrings of device names.
// False positives and negatives are expected.
var printerTokens = []string{
	"printer",
	"print",
	"pos",
	"thermal",
	"receipt",
	"label",
	"epson",
	"star",
	"bixolon",
	"citizen",
	"zebra",
	"xprinter",
	"goojprt",
	"munbyn",
	"rongta",
	"sunmi",
	"hprt",
	"peripage",
	"phomemo",
	"niimbot",
	"tm-",
	"tsp",
	"mpt-",
	"rpp",
	"pt-",
	"mtp-",
	"zj-",
}

func IsLikelyPrinter(name string) bool {
	lower := strings.ToLower(name)
	for _, token := range printerTokens {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

func inferType(name string, confirmed bool) DeviceType {
	if confirmed || IsLikelyPrinter(name) {
		return DeviceTypePrinter
	}
	return DeviceTypeUnknown
}

// FilterPrinters keeps devices with an address whose name passes the
// printer heuristic. The confirmed flag does not influence the result.
func FilterPrinters(devices []PrinterDevice) []PrinterDevice {
	out := make([]PrinterDevice, 0, len(devices))
	for _, d := range devices {
		if d.Address == "" || !IsLikelyPrinter(d.Name) {
			continue
		}
		out = append(out, d)
	}
	return out
}
