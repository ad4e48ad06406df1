// Package util maps errors to process exit codes.
package util

import (
	"errors"
	"fmt"
	"os"

	"github.com/vault-cli/entr/internal/config"
	"github.com/vault-cli/entr/internal/session"
	"github.com/vault-cli/entr/internal/store"
	"github.com/vault-cli/entr/internal/vault"
)

// Exit codes
const (
	ExitOK              = 0
	ExitError           = 1
	ExitInvalidInput    = 2
	ExitVaultLocked     = 3
	ExitIntegrityErr    = 4
	ExitInvalidPassword = 5
	ExitVaultMissing    = 6
)

// ExitCode returns the exit code for err.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, session.ErrInvalidPassword):
		return ExitInvalidPassword
	case errors.Is(err, session.ErrMissingVaultFile), errors.Is(err, store.ErrFileNotFound):
		return ExitVaultMissing
	case errors.Is(err, session.ErrCorruptedVault),
		errors.Is(err, session.ErrModelDecodeFailed),
		errors.Is(err, vault.ErrHashMismatch):
		return ExitIntegrityErr
	case errors.Is(err, store.ErrVaultLocked):
		return ExitVaultLocked
	case errors.Is(err, vault.ErrInvalidPassword),
		errors.Is(err, vault.ErrInvalidKDFParams),
		errors.Is(err, config.ErrInvalidConfig):
		return ExitInvalidInput
	default:
		return ExitError
	}
}

// ExitWithCode exits the program with the specified code and message
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// HandleError prints err and exits with its mapped code.
func HandleError(err error) {
	if err == nil {
		return
	}
	code := ExitCode(err)
	if code == ExitIntegrityErr {
		ExitWithCode(code, "Error: %v\nRun 'entr doctor' to diagnose issues.", err)
	}
	ExitWithCode(code, "Error: %v", err)
}
