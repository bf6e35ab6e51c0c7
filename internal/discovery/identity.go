package discovery

import "github.com/danielcherubini/elegoo-printercore/internal/wire"

// PrinterFamily classifies a printer's print technology.
type PrinterFamily string

const (
	FamilyResin PrinterFamily = "resin"
	FamilyFDM   PrinterFamily = "fdm"
)

// Identity is the immutable result of a successful discovery probe.
type Identity struct {
	Name            string
	Model           string
	Serial          string
	IPAddress       string
	Firmware        string
	ProtocolVersion string
	ProtocolKind    wire.Dialect
	PrinterFamily   PrinterFamily
	Capabilities    map[string]struct{}
}

// HasCapability reports whether the identity advertises the named capability
// tag (e.g. "video", "ams", "thumbnail", "cloud-only").
func (i Identity) HasCapability(tag string) bool {
	_, ok := i.Capabilities[tag]
	return ok
}

// withCapability returns a copy of the capability set with tag added.
func withCapability(caps map[string]struct{}, tag string) map[string]struct{} {
	out := make(map[string]struct{}, len(caps)+1)
	for k := range caps {
		out[k] = struct{}{}
	}
	out[tag] = struct{}{}
	return out
}

// familyPrefixes maps model-name prefixes to printer family, most specific
// first. Unknown prefixes default to FamilyFDM per the discovery contract.
var familyPrefixes = []struct {
	prefix string
	family PrinterFamily
}{
	{"Saturn", FamilyResin},
	{"Mars", FamilyResin},
	{"Jupiter", FamilyResin},
	{"Centauri", FamilyFDM},
	{"Neptune", FamilyFDM},
}

// inferFamily guesses PrinterFamily from a model string using a documented,
// table-driven list of prefixes.
func inferFamily(model string) PrinterFamily {
	for _, entry := range familyPrefixes {
		if len(model) >= len(entry.prefix) && model[:len(entry.prefix)] == entry.prefix {
			return entry.family
		}
	}
	return FamilyFDM
}
