package version

import (
	"testing"
)

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  Release
	}{
		{"1.0.0", Release{1, 0, 0}},
		{"1.2.3", Release{1, 2, 3}},
		{"10.23.7", Release{10, 23, 7}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "1", "1.0", "1.0.0.0", "1.x.0", "-1.0.0", "1..0"} {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse(input); err == nil {
				t.Errorf("Parse(%q) should return error", input)
			}
		})
	}
}

func TestCurrentVersionParses(t *testing.T) {
	if _, err := Parse(Version); err != nil {
		t.Fatalf("Parse(Version) returned error: %v", err)
	}
}

func TestUserAgentRoundTrip(t *testing.T) {
	product, r, err := ParseUserAgent(UserAgent())
	if err != nil {
		t.Fatalf("ParseUserAgent returned error: %v", err)
	}
	if product != ClientName {
		t.Errorf("product = %q, want %q", product, ClientName)
	}
	if r.String() != Version {
		t.Errorf("release = %s, want %s", r, Version)
	}

	for _, bad := range []string{"", "amqp-device-go", "/1.0.0", "x/1.0"} {
		if _, _, err := ParseUserAgent(bad); err == nil {
			t.Errorf("ParseUserAgent(%q) should return error", bad)
		}
	}
}
