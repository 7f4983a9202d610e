package main

import (
	"os"
	"path/filepath"
	"testing"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("Unsetenv(%s) error = %v", key, err)
	}
}

func TestParseFlags_EnvFileSuppliesDefaults(t *testing.T) {
	for _, key := range []string{"ADDR", "DATABASE_PATH", "COMPANY_PROFILE"} {
		unsetenv(t, key)
	}
	envFile := filepath.Join(t.TempDir(), "test.env")
	content := "ADDR=:9090\nDATABASE_PATH=/srv/x.db\nCOMPANY_PROFILE=/srv/company.yaml\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	o, err := parseFlags([]string{"--env-file", envFile, "--addr", ":7070"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if o.dbPath != "/srv/x.db" {
		t.Errorf("dbPath = %q, want /srv/x.db", o.dbPath)
	}
	if o.companyProfile != "/srv/company.yaml" {
		t.Errorf("companyProfile = %q, want /srv/company.yaml", o.companyProfile)
	}
	if o.addr != ":7070" {
		t.Errorf("addr = %q, an explicit flag must win over the env file", o.addr)
	}
}

func TestParseFlags_MissingEnvFile(t *testing.T) {
	unsetenv(t, "DATABASE_PATH")
	o, err := parseFlags([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}
	if o.dbPath != "data/invoice-manager.db" {
		t.Errorf("dbPath = %q, want the built-in default", o.dbPath)
	}
}
