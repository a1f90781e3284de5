package main

import (
	"os"
	"path/filepath"
	"testing"

	"cmms/internal/domain"
	"cmms/internal/engine"
)

func TestSetEnvValueReplacesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("OTHER=1\nCMMS_JWT_SECRET=old\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	if err := setEnvValue(path, "CMMS_JWT_SECRET", "new"); err != nil {
		t.Fatalf("set existing: %v", err)
	}
	if err := setEnvValue(path, "CMMS_LOG_LEVEL", "debug"); err != nil {
		t.Fatalf("append: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	want := "OTHER=1\nCMMS_JWT_SECRET=new\nCMMS_LOG_LEVEL=debug\n"
	if string(data) != want {
		t.Fatalf("unexpected .env:\n%s", data)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestSetEnvValueCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := setEnvValue(path, "CMMS_JWT_SECRET", "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "CMMS_JWT_SECRET=abc\n" {
		t.Fatalf("unexpected .env %q", data)
	}
}

func TestOptionalParsers(t *testing.T) {
	if d, err := optionalDate(""); d != nil || err != nil {
		t.Fatalf("empty date: %v %v", d, err)
	}
	d, err := optionalDate("2024-03-01")
	if err != nil || d.Format(domain.DateLayout) != "2024-03-01" {
		t.Fatalf("date: %v %v", d, err)
	}
	if _, err := optionalDate("03/01/2024"); err == nil {
		t.Fatalf("expected date error")
	}
	if _, err := optionalTimestamp("2024-03-01"); err == nil {
		t.Fatalf("expected timestamp error")
	}
}

func TestFacilityLabel(t *testing.T) {
	got := facilityLabel(domain.FacilityRef{Type: domain.FacilityRoom, BuildingID: "B1", RoomID: "R101"})
	if got != "room building=B1 room=R101" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := facilityLabel(domain.FacilityRef{Type: domain.FacilityNone}); got != "none" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestWindowFlags(t *testing.T) {
	var q engine.ActivityQuery
	if err := windowFlags("2024-01-02T00:00:00Z", "", &q); err != nil {
		t.Fatalf("window: %v", err)
	}
	if q.From == nil || q.From.Day() != 2 || q.To != nil {
		t.Fatalf("unexpected window %+v", q)
	}
	if err := windowFlags("", "yesterday", &q); err == nil {
		t.Fatalf("expected bad --to rejected")
	}
}
