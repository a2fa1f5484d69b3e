package geoip

import (
	"errors"
	"testing"
)

func TestOpenEmptyPath(t *testing.T) {
	r, err := Open("  ")
	if err != nil || r != nil {
		t.Fatalf("Open(blank) = %v, %v; want nil, nil", r, err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() on nil resolver: %v", err)
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(t.TempDir() + "/missing.mmdb"); err == nil {
		t.Fatalf("Open() expected error for missing database")
	}
}

func TestCountryWithoutDatabase(t *testing.T) {
	var r *Resolver
	cases := []struct {
		ip      string
		want    string
		wantErr error
		invalid bool
	}{
		{ip: "127.0.0.1"},
		{ip: "10.1.2.3"},
		{ip: "::1"},
		{ip: "113.160.0.1", wantErr: ErrUnavailable},
		{ip: "not-an-ip", invalid: true},
	}
	for _, tc := range cases {
		got, err := r.Country(tc.ip)
		switch {
		case tc.invalid:
			if err == nil {
				t.Fatalf("Country(%q) expected error", tc.ip)
			}
		case tc.wantErr != nil:
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Country(%q) error = %v, want %v", tc.ip, err, tc.wantErr)
			}
		default:
			if err != nil || got != tc.want {
				t.Fatalf("Country(%q) = %q, %v", tc.ip, got, err)
			}
		}
	}
}
