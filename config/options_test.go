package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSoftSetNeverOverridesExplicit(t *testing.T) {
	opts := NewRawOptions()
	opts.Set("listen", "1")

	if opts.SoftSet("listen", "0") {
		t.Fatal("soft set overrode an explicit value")
	}
	if got := opts.Get("listen", ""); got != "1" {
		t.Fatalf("listen = %q, want %q", got, "1")
	}
	if !opts.Explicit("listen") {
		t.Fatal("explicit flag lost")
	}
}

func TestSoftSetFillsAbsentOption(t *testing.T) {
	opts := NewRawOptions()
	if !opts.SoftSet("discover", "0") {
		t.Fatal("soft set on absent option not applied")
	}
	if opts.Explicit("discover") {
		t.Fatal("soft value reported as explicit")
	}
	if got := opts.Get("discover", ""); got != "0" {
		t.Fatalf("discover = %q, want %q", got, "0")
	}
	// A second soft set must see the existing soft value.
	if opts.SoftSet("discover", "1") {
		t.Fatal("soft set applied twice")
	}
}

func TestParseArgs(t *testing.T) {
	opts := NewRawOptions()
	err := ParseArgs(opts, []string{"-testnet", "-port=1234", "--addnode=a", "-addnode=b"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !opts.Bool("testnet", false) {
		t.Fatal("bare flag not true")
	}
	if got := opts.Get("port", ""); got != "1234" {
		t.Fatalf("port = %q", got)
	}
	if got := opts.Multi("addnode"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("addnode = %v", got)
	}
}

func TestParseArgsRejectsBareWord(t *testing.T) {
	opts := NewRawOptions()
	if err := ParseArgs(opts, []string{"daemon"}); err == nil {
		t.Fatal("expected error for option without dash")
	}
}

func TestBoolValues(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", false, true},
		{"1", false, true},
		{"true", false, true},
		{"0", true, false},
		{"false", true, false},
		{"banana", true, true},
	}
	for _, tc := range tests {
		opts := NewRawOptions()
		opts.Set("x", tc.value)
		if got := opts.Bool("x", tc.def); got != tc.want {
			t.Errorf("Bool(%q, %v) = %v, want %v", tc.value, tc.def, got, tc.want)
		}
	}
}

func TestOverrideReplaces(t *testing.T) {
	opts := NewRawOptions()
	opts.Set("datadir", "/a")
	opts.Override("datadir", "/a/testnet")
	if got := opts.Get("datadir", ""); got != "/a/testnet" {
		t.Fatalf("datadir = %q", got)
	}
	if got := opts.Multi("datadir"); len(got) != 1 {
		t.Fatalf("expected one value, got %v", got)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nyx.conf")
	conf := "listen = 0\naddnode = [\"a:1\", \"b:2\"]\nrpcport = 9999\n"
	if err := os.WriteFile(path, []byte(conf), 0o600); err != nil {
		t.Fatal(err)
	}

	opts := NewRawOptions()
	opts.Set("rpcport", "1111") // command line wins
	if err := LoadFile(opts, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if opts.Bool("listen", true) {
		t.Fatal("listen from file not applied")
	}
	if got := opts.Multi("addnode"); len(got) != 2 {
		t.Fatalf("addnode = %v", got)
	}
	if got := opts.Get("rpcport", ""); got != "1111" {
		t.Fatalf("rpcport = %q, file overrode the command line", got)
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "nyx.conf")
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig: %v", err)
	}
	// The starter file must parse cleanly and set nothing.
	opts := NewRawOptions()
	if err := LoadFile(opts, path); err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if names := opts.Names(); len(names) != 0 {
		t.Fatalf("default config sets options: %v", names)
	}

	// An existing file is never overwritten.
	if err := os.WriteFile(path, []byte("listen = 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteDefaultConfig(path); err != nil {
		t.Fatalf("WriteDefaultConfig on existing file: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if string(raw) != "listen = 0\n" {
		t.Fatal("existing configuration overwritten")
	}
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	opts := NewRawOptions()
	if err := LoadFile(opts, filepath.Join(t.TempDir(), "absent.conf")); err != nil {
		t.Fatalf("LoadFile on missing file: %v", err)
	}
}
