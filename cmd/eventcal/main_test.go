package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// setup writes a config whose data_dir points into a temp directory.
func setup(t *testing.T) (configPath, dataDir string) {
	t.Helper()
	dir := t.TempDir()
	dataDir = filepath.Join(dir, "data")
	configPath = filepath.Join(dir, "eventcal.yaml")
	writeFile(t, configPath, "data_dir: "+dataDir+"\nlog_level: error\n")
	return configPath, dataDir
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

const validEvent = `{"title":"Meetup","start":"2025-03-01","end":"2025-03-01","status":"confirmed","organizer":"Org","tags":["實體"]}`

func TestValidateCommand(t *testing.T) {
	cfgPath, dataDir := setup(t)

	good := filepath.Join(dataDir, "good.json")
	writeFile(t, good, validEvent)

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "validate", good)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr %q)", code, stderr)
	}
	if stdout != "OK: "+good+"\n" {
		t.Fatalf("unexpected stdout %q", stdout)
	}

	t.Run("unknown tag", func(t *testing.T) {
		bad := filepath.Join(dataDir, "bad.json")
		writeFile(t, bad, strings.Replace(validEvent, "實體", "unknown-tag", 1))
		code, stdout, stderr := runCLI(t, "-config", cfgPath, "validate", bad)
		if code != 1 || stdout != "" {
			t.Fatalf("expected exit 1 and no stdout, got %d %q", code, stdout)
		}
		if !strings.Contains(stderr, `Error: field 'tags': unsupported tag "unknown-tag"`) {
			t.Fatalf("unexpected stderr %q", stderr)
		}
	})

	t.Run("ftp url", func(t *testing.T) {
		bad := filepath.Join(dataDir, "ftp.json")
		writeFile(t, bad, strings.Replace(validEvent, `"tags"`, `"url":"ftp://x.com","tags"`, 1))
		code, _, stderr := runCLI(t, "-config", cfgPath, "validate", bad)
		if code != 1 || !strings.Contains(stderr, "field 'url'") {
			t.Fatalf("expected url failure, got %d %q", code, stderr)
		}
	})

	t.Run("array with index", func(t *testing.T) {
		arr := filepath.Join(dataDir, "arr.json")
		writeFile(t, arr, "["+validEvent+`,{"title":"x"}]`)
		code, _, stderr := runCLI(t, "-config", cfgPath, "validate", arr)
		if code != 1 || !strings.Contains(stderr, "Error: record 2: field 'start': missing required field") {
			t.Fatalf("expected indexed errors, got %d %q", code, stderr)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		code, _, stderr := runCLI(t, "-config", cfgPath, "validate", filepath.Join(dataDir, "nope.json"))
		if code != 1 || !strings.Contains(stderr, "Error: File not found:") {
			t.Fatalf("expected not found, got %d %q", code, stderr)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		broken := filepath.Join(dataDir, "broken.json")
		writeFile(t, broken, "{")
		code, _, stderr := runCLI(t, "-config", cfgPath, "validate", broken)
		if code != 1 || !strings.Contains(stderr, "Error: Invalid JSON:") {
			t.Fatalf("expected invalid JSON, got %d %q", code, stderr)
		}
	})

	t.Run("argument count", func(t *testing.T) {
		code, _, stderr := runCLI(t, "-config", cfgPath, "validate")
		if code != 1 || !strings.Contains(stderr, "Usage") {
			t.Fatalf("expected usage error, got %d %q", code, stderr)
		}
		code, _, _ = runCLI(t, "-config", cfgPath, "validate", good, good)
		if code != 1 {
			t.Fatalf("expected exit 1 for two paths, got %d", code)
		}
	})
}

func TestValidateWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "eventcal.yaml")
	good := filepath.Join(dir, "good.json")
	writeFile(t, good, validEvent)

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "-log-level", "error", "validate", good)
	if code != 0 || stdout != "OK: "+good+"\n" {
		t.Fatalf("expected OK, got %d %q %q", code, stdout, stderr)
	}
	if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
		t.Fatalf("validate must not create %s, got %v", cfgPath, err)
	}
}

func TestBuildCommand(t *testing.T) {
	cfgPath, dataDir := setup(t)
	writeFile(t, filepath.Join(dataDir, "events", "meetup.json"), validEvent)

	code, stdout, stderr := runCLI(t, "-config", cfgPath, "sync-index", filepath.Join(dataDir, "events", "meetup.json"))
	if code != 0 {
		t.Fatalf("sync-index: expected exit 0, got %d (%q)", code, stderr)
	}
	if stdout != "index.json updated with 1 files\n" {
		t.Fatalf("unexpected sync-index output %q", stdout)
	}

	code, _, stderr = runCLI(t, "-config", cfgPath, "build")
	if code != 0 {
		t.Fatalf("build: expected exit 0, got %d (%q)", code, stderr)
	}
	for _, name := range []string{"all.json", "allevents.ics", "confirmed.ics", "tentative.ics"} {
		if _, err := os.Stat(filepath.Join(dataDir, name)); err != nil {
			t.Fatalf("expected %s to be written: %v", name, err)
		}
	}

	writeFile(t, filepath.Join(dataDir, "events", "bad.json"), strings.Replace(validEvent, "confirmed", "cancelled", 1))
	if code, _, _ := runCLI(t, "-config", cfgPath, "sync-index", filepath.Join(dataDir, "events", "bad.json")); code != 0 {
		t.Fatalf("sync-index: expected exit 0, got %d", code)
	}
	if code, _, _ := runCLI(t, "-config", cfgPath, "build"); code != 1 {
		t.Fatalf("build with rejected record: expected exit 1, got %d", code)
	}
}

func TestUnknownCommand(t *testing.T) {
	cfgPath, _ := setup(t)
	if code, _, _ := runCLI(t, "-config", cfgPath, "publish"); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("expected exit 2 without a command, got %d", code)
	}
}
