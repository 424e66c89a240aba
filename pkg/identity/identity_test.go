package identity

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+15551230000", "tel:+15551230000"},
		{"5551230000", "tel:+15551230000"},
		{"15551230000", "tel:+15551230000"},
		{"tel:+15551230000", "tel:+15551230000"},
		{"(555) 123-0000", "tel:+15551230000"},
		{"555.123.0000", "tel:+15551230000"},
		{"+447700900123", "tel:+447700900123"},
		{"447700900123", "tel:+447700900123"},
		{"Someone@Example.COM", "mailto:someone@example.com"},
		{"mailto:Someone@Example.com", "mailto:someone@example.com"},
		{"  user@host.net ", "mailto:user@host.net"},
		// Short codes stay digit-only and never gain a dialing prefix.
		{"242733", "242733"},
		{"894-33", "89433"},
		{"", ""},
		{"urn:whatever", "urn:whatever"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	variants := []string{"+15551230000", "5551230000", "tel:15551230000", "(555) 123-0000"}
	want := Normalize(variants[0])
	for _, v := range variants {
		if got := Normalize(v); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestIsAmbiguous(t *testing.T) {
	cases := []struct {
		key  string
		want bool
	}{
		{"tel:+15551230000", false},
		{"mailto:a@b.c", false},
		{"242733", true},
		{"", true},
		{"urn:whatever", true},
	}
	for _, tc := range cases {
		if got := IsAmbiguous(tc.key); got != tc.want {
			t.Errorf("IsAmbiguous(%q) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestNormalizerCustomPrefix(t *testing.T) {
	n := Normalizer{DefaultPrefix: "+44"}
	if got := n.Normalize("7700900123"); got != "tel:+447700900123" {
		t.Errorf("Normalize with +44 prefix = %q", got)
	}
}

func TestFormatAddress(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"tel:+15551230000", "+1 (555) 123-0000"},
		{"mailto:a@b.c", "a@b.c"},
		{"tel:+447700900123", "+447700900123"},
		{"242733", "242733"},
	}
	for _, tc := range cases {
		if got := FormatAddress(tc.in); got != tc.want {
			t.Errorf("FormatAddress(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
