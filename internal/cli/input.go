package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"golang.org/x/text/unicode/norm"

	"github.com/vault-cli/entr/internal/secure"
)

var errPasswordMismatch = errors.New("passwords do not match")

// promptPassword reads a password without echo from a terminal, or one line
// from stdin when it is not a terminal.
func (a *app) promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)

	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}

	line, err := a.readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return line, nil
}

// readPassword prompts through the configured source and normalizes the
// result to NFC so the same passphrase typed on different systems derives
// the same key.
func (a *app) readPassword(prompt string) ([]byte, error) {
	raw, err := a.passwords(prompt)
	if err != nil {
		return nil, err
	}
	defer zero(raw)
	return norm.NFC.Append(nil, raw...), nil
}

// readNewPassword prompts twice and requires both answers to match.
func (a *app) readNewPassword(prompt string) ([]byte, error) {
	password, err := a.readPassword(prompt)
	if err != nil {
		return nil, err
	}
	confirm, err := a.readPassword("Confirm password: ")
	if err != nil {
		zero(password)
		return nil, err
	}
	defer zero(confirm)

	if !bytes.Equal(password, confirm) {
		zero(password)
		return nil, errPasswordMismatch
	}
	return password, nil
}

func (a *app) readLine() ([]byte, error) {
	br, ok := a.stdin.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(a.stdin)
		a.stdin = br
	}
	line, err := br.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		zero(line)
		return nil, err
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// promptConfirm prompts for yes/no confirmation
func (a *app) promptConfirm(prompt string, defaultYes bool) (bool, error) {
	suffix := " [y/N]: "
	if defaultYes {
		suffix = " [Y/n]: "
	}
	fmt.Fprint(os.Stderr, prompt+suffix)

	line, err := a.readLine()
	if err != nil {
		return false, fmt.Errorf("failed to read input: %w", err)
	}

	input := strings.ToLower(strings.TrimSpace(string(line)))
	if input == "" {
		return defaultYes, nil
	}
	return input == "y" || input == "yes", nil
}

func zero(b []byte) {
	secure.Zeroize(b)
}
