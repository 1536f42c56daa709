package hidhost

// DiscoveredDevice is a device seen during discovery together with the name
// decoded from its inquiry response, if any.
type DiscoveredDevice struct {
	Address Address
	Name    string
	HasName bool
}

// Matcher decides whether a discovered device is the target peripheral.
type Matcher struct {
	TargetName string
}

// Match reports whether d advertised exactly the target name. Comparison is
// byte-wise and case-sensitive; a device without a name never matches.
func (m Matcher) Match(d DiscoveredDevice) bool {
	return d.HasName && d.Name == m.TargetName
}
