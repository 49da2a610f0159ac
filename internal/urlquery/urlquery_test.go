package urlquery

import "testing"

func TestWithout(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		names []string
		want  string
	}{
		{"empty", "", []string{"_hash"}, ""},
		{"only removed", "_hash=abc%3D", []string{"_hash"}, ""},
		{"order preserved", "z=1&_hash=x&a=2", []string{"_hash"}, "z=1&a=2"},
		{"encoded name", "%5Fhash=x&a=2", []string{"_hash"}, "a=2"},
		{"repeated", "_hash=x&_hash=y", []string{"_hash"}, ""},
		{"prefix of name kept", "_hashes=1", []string{"_hash"}, "_hashes=1"},
		{"raw encoding kept", "q=a+b%20c&_hash=x", []string{"_hash"}, "q=a+b%20c"},
		{"several names", "canonicalUri=http://x/&v=2&_hash=y", []string{"_hash", "canonicalUri"}, "v=2"},
		{"bare key", "_hash&a", []string{"_hash"}, "a"},
		{"undecodable key kept", "%zz=1&_hash=2", []string{"_hash"}, "%zz=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Without(tt.raw, tt.names...); got != tt.want {
				t.Errorf("Without(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
