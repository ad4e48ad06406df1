package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vault-cli/entr/internal/config"
	"github.com/vault-cli/entr/internal/session"
	"github.com/vault-cli/entr/internal/store"
	"github.com/vault-cli/entr/internal/vault"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{&session.UnlockError{Kind: session.ErrInvalidPassword}, ExitInvalidPassword},
		{&session.UnlockError{Kind: session.ErrMissingVaultFile}, ExitVaultMissing},
		{&session.UnlockError{Kind: session.ErrCorruptedVault}, ExitIntegrityErr},
		{&session.UnlockError{Kind: session.ErrModelDecodeFailed}, ExitIntegrityErr},
		{fmt.Errorf("doctor: %w", vault.ErrHashMismatch), ExitIntegrityErr},
		{fmt.Errorf("write: %w", store.ErrVaultLocked), ExitVaultLocked},
		{fmt.Errorf("%w: minimum 12", vault.ErrInvalidPassword), ExitInvalidInput},
		{config.ErrInvalidConfig, ExitInvalidInput},
		{errors.New("boom"), ExitError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}
