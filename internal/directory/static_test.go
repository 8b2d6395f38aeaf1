package directory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticDirectoryFallsBackToDevReceptionist(t *testing.T) {
	d, err := NewStaticDirectory("", "")
	if err != nil {
		t.Fatalf("NewStaticDirectory() error = %v", err)
	}
	cfg, err := d.LookupByCalledNumber(context.Background(), "+15550000000")
	if err != nil {
		t.Fatalf("LookupByCalledNumber() error = %v", err)
	}
	if !cfg.Enabled || cfg.AgentName != "AI Receptionist" || cfg.BusinessHours != "9:00 AM - 5:00 PM" {
		t.Fatalf("unexpected dev config: %+v", cfg)
	}
	owner, err := d.ResolveOwnerID(context.Background(), "+15550000000")
	if err != nil || owner != DefaultDevOwnerID {
		t.Fatalf("ResolveOwnerID() = %q, %v; want %q", owner, err, DefaultDevOwnerID)
	}
}

func TestStaticDirectoryLoadsSeedFile(t *testing.T) {
	seed := `[
		{"phone_number": "+1 (555) 123-0000", "owner_id": "user-42",
		 "config": {"enabled": false, "business_name": "Acme Dental", "business_hours": "8-4"}}
	]`
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	d, err := NewStaticDirectory(path, "dev")
	if err != nil {
		t.Fatalf("NewStaticDirectory() error = %v", err)
	}
	cfg, err := d.LookupByCalledNumber(context.Background(), "+15551230000")
	if err != nil {
		t.Fatalf("LookupByCalledNumber() error = %v", err)
	}
	if cfg.Enabled || cfg.BusinessName != "Acme Dental" {
		t.Fatalf("seeded config = %+v", cfg)
	}
	owner, _ := d.ResolveOwnerID(context.Background(), "+15551230000")
	if owner != "user-42" {
		t.Fatalf("ResolveOwnerID() = %q, want user-42", owner)
	}
}

func TestStaticDirectoryRejectsBadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := NewStaticDirectory(path, ""); err == nil {
		t.Fatalf("NewStaticDirectory() error = nil, want decode error")
	}
}

func TestNormalizeNumber(t *testing.T) {
	cases := map[string]string{
		"+1 (555) 123-0000": "+15551230000",
		" 5551230000 ":      "5551230000",
		"555+1":             "5551",
		"":                  "",
	}
	for in, want := range cases {
		if got := NormalizeNumber(in); got != want {
			t.Fatalf("NormalizeNumber(%q) = %q, want %q", in, got, want)
		}
	}
}
