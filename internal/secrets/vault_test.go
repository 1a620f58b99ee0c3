package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func staticSource(name string, vals map[string]string) Source {
	return Source{Name: name, Load: func() (map[string]string, error) {
		cp := make(map[string]string, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		return cp, nil
	}}
}

func TestVaultMergesLaterSourcesWin(t *testing.T) {
	v, err := Open(
		staticSource("first", map[string]string{"A": "1", "B": "1"}),
		staticSource("second", map[string]string{"B": "2"}),
	)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if got := v.Get("A"); got != "1" {
		t.Fatalf("expected 1, got %q", got)
	}
	if got := v.Get("B"); got != "2" {
		t.Fatalf("expected later source to win, got %q", got)
	}
	if got := v.Get("MISSING"); got != "" {
		t.Fatalf("expected empty for missing key, got %q", got)
	}
	if v.Len() != 2 {
		t.Fatalf("expected 2 secrets, got %d", v.Len())
	}
}

func TestVaultReload(t *testing.T) {
	vals := map[string]string{"KEY": "one"}
	v, err := Open(staticSource("memory", vals))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	vals["KEY"] = "two"
	if err := v.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := v.Get("KEY"); got != "two" {
		t.Fatalf("expected two after reload, got %q", got)
	}
}

func TestVaultReloadPreservesValuesOnError(t *testing.T) {
	fail := false
	src := Source{Name: "flaky", Load: func() (map[string]string, error) {
		if fail {
			return nil, errors.New("source down")
		}
		return map[string]string{"KEY": "stable"}, nil
	}}

	v, err := Open(src)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	fail = true
	err = v.Reload()
	if err == nil {
		t.Fatal("expected reload error")
	}
	if !strings.Contains(err.Error(), "flaky") {
		t.Fatalf("expected source name in error, got %v", err)
	}
	if got := v.Get("KEY"); got != "stable" {
		t.Fatalf("expected value preserved, got %q", got)
	}
}

func TestFromEnvPrefix(t *testing.T) {
	t.Setenv("HIVE_SECRET_LITELLM_API_KEY", "from-env")
	t.Setenv("HIVE_OTHER_VAR", "ignored")

	vals, err := FromEnvPrefix("HIVE_SECRET_").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if vals["LITELLM_API_KEY"] != "from-env" {
		t.Fatalf("expected prefix stripped, got %v", vals)
	}
	if _, ok := vals["OTHER_VAR"]; ok {
		t.Fatal("expected non-prefixed variable omitted")
	}
}

func TestFromFileMissingFileIsEmpty(t *testing.T) {
	vals, err := FromFile(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(vals) != 0 {
		t.Fatalf("expected no values, got %v", vals)
	}
}

func TestFromFileReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	if err := os.WriteFile(path, []byte("API_KEY: s3cret\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	vals, err := FromFile(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if vals["API_KEY"] != "s3cret" {
		t.Fatalf("expected secret, got %v", vals)
	}
}

func TestWriteSecretRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.yaml")

	if err := WriteSecret(path, "API_KEY", "first"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := WriteSecret(path, "OTHER", "second"); err != nil {
		t.Fatalf("write second: %v", err)
	}

	vals, err := FromFile(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if vals["API_KEY"] != "first" || vals["OTHER"] != "second" {
		t.Fatalf("expected both keys kept, got %v", vals)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected owner-only permissions, got %v", info.Mode().Perm())
	}
}
