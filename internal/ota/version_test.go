package ota

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    [3]int
		wantOK  bool
	}{
		{"well formed", "1.2.3", [3]int{1, 2, 3}, true},
		{"zeros", "0.0.0", [3]int{0, 0, 0}, true},
		{"missing component", "1.2", [3]int{}, false},
		{"extra component", "1.2.3.4", [3]int{}, false},
		{"non numeric", "1.x.3", [3]int{}, false},
		{"negative component", "1.-2.3", [3]int{}, false},
		{"empty", "", [3]int{}, false},
		{"leading v prefix not stripped here", "v1.2.3", [3]int{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseVersion(tt.version)
			if ok != tt.wantOK {
				t.Fatalf("ParseVersion(%q) ok = %v, want %v", tt.version, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseVersion(%q) = %v, want %v", tt.version, got, tt.want)
			}
		})
	}
}

func TestNewer(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		current   string
		want      bool
	}{
		{"patch newer", "1.2.4", "1.2.3", true},
		{"minor newer", "1.3.0", "1.2.9", true},
		{"major newer", "2.0.0", "1.9.9", true},
		{"equal", "1.2.3", "1.2.3", false},
		{"older", "1.2.2", "1.2.3", false},
		{"malformed candidate", "abc", "1.2.3", false},
		{"malformed current", "1.2.3", "abc", false},
		{"both malformed", "abc", "def", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Newer(tt.candidate, tt.current); got != tt.want {
				t.Errorf("Newer(%q, %q) = %v, want %v", tt.candidate, tt.current, got, tt.want)
			}
		})
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct{ in, want string }{
		{"v1.2.3", "1.2.3"},
		{"1.2.3", "1.2.3"},
		{"V2.0.0", "V2.0.0"},
	}
	for _, tt := range tests {
		if got := normalizeTag(tt.in); got != tt.want {
			t.Errorf("normalizeTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
