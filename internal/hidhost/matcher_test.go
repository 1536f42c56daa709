package hidhost

import "testing"

func TestMatcher(t *testing.T) {
	m := Matcher{TargetName: "Nintendo RVL-WBC-01"}
	tests := []struct {
		name string
		dev  DiscoveredDevice
		want bool
	}{
		{name: "exact", dev: DiscoveredDevice{Name: "Nintendo RVL-WBC-01", HasName: true}, want: true},
		{name: "case differs", dev: DiscoveredDevice{Name: "nintendo rvl-wbc-01", HasName: true}, want: false},
		{name: "prefix", dev: DiscoveredDevice{Name: "Nintendo RVL-WBC", HasName: true}, want: false},
		{name: "trailing space", dev: DiscoveredDevice{Name: "Nintendo RVL-WBC-01 ", HasName: true}, want: false},
		{name: "no name", dev: DiscoveredDevice{}, want: false},
	}
	for _, tt := range tests {
		if got := m.Match(tt.dev); got != tt.want {
			t.Errorf("%s: Match() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMatcherEmptyTargetNeedsName(t *testing.T) {
	m := Matcher{}
	if m.Match(DiscoveredDevice{}) {
		t.Error("Match() = true for device without a name")
	}
	if !m.Match(DiscoveredDevice{HasName: true}) {
		t.Error("Match() = false for empty advertised name against empty target")
	}
}
