package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vault-cli/entr/internal/clipboard"
)

type countingReader struct {
	next byte
}

func (r *countingReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.next
		r.next++
	}
	return len(p), nil
}

func runPassgenCmd(t *testing.T, c *testCLI, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(
		WithRandom(&countingReader{}),
		WithClipboard(clipboard.NewWithBackend(c.clip)),
	)
	var stdout bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{"--config", c.cfgPath, "passgen"}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func TestPassgenGeneratePassword(t *testing.T) {
	c := newTestCLI(t)
	out, err := runPassgenCmd(t, c, "--length", "24", "--charset", "alnum")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	output := strings.TrimSpace(out)
	if len(output) != 24 {
		t.Fatalf("expected password length 24, got %d", len(output))
	}

	allowed := "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for _, r := range output {
		if !strings.ContainsRune(allowed, r) {
			t.Fatalf("character %q not allowed for charset alnum", r)
		}
	}
}

func TestPassgenDeterministicWithFixedSource(t *testing.T) {
	c := newTestCLI(t)
	first, err := runPassgenCmd(t, c, "--length", "16")
	if err != nil {
		t.Fatal(err)
	}
	second, err := runPassgenCmd(t, c, "--length", "16")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("same random source gave %q and %q", first, second)
	}
}

func TestPassgenPassphrase(t *testing.T) {
	c := newTestCLI(t)
	out, err := runPassgenCmd(t, c, "--words", "4", "--separator", " ")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if words := strings.Fields(out); len(words) != 4 {
		t.Fatalf("expected 4 words, got %q", out)
	}
}

func TestPassgenInvalidInput(t *testing.T) {
	c := newTestCLI(t)
	tests := [][]string{
		{"--words", "4", "--length", "16"},
		{"--words", "4", "--charset", "alpha"},
		{"--charset", "emoji"},
		{"--length", "0"},
	}
	for _, args := range tests {
		if _, err := runPassgenCmd(t, c, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestPassgenCopyToClipboard(t *testing.T) {
	c := newTestCLI(t)
	out, err := runPassgenCmd(t, c, "--length", "20", "--copy")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "copied to clipboard") {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(c.clip.writes) != 2 || len(c.clip.writes[0]) != 20 || c.clip.writes[1] != "" {
		t.Fatalf("clipboard writes = %q", c.clip.writes)
	}
	if strings.Contains(out, c.clip.writes[0]) {
		t.Fatal("password printed despite --copy")
	}
}
