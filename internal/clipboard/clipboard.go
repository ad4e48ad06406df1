// Package clipboard copies secrets to the system clipboard and clears them
// again after a timeout.
package clipboard

import (
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// Backend is the clipboard the package writes to.
type Backend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemBackend struct{}

func (systemBackend) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemBackend) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Clipboard writes to a Backend and schedules clearing.
type Clipboard struct {
	backend Backend
}

// New returns a Clipboard over the system clipboard.
func New() *Clipboard {
	return &Clipboard{backend: systemBackend{}}
}

// NewWithBackend returns a Clipboard over b.
func NewWithBackend(b Backend) *Clipboard {
	return &Clipboard{backend: b}
}

// CopyWithTimeout copies text and clears the clipboard after timeout, unless
// something else was copied in the meantime. The returned channel is closed
// once the clear has run; a CLI process must wait on it or the clear never
// happens.
func (c *Clipboard) CopyWithTimeout(text string, timeout time.Duration) (<-chan struct{}, error) {
	if err := c.backend.WriteAll(text); err != nil {
		return nil, fmt.Errorf("failed to copy to clipboard: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(timeout)

		current, err := c.backend.ReadAll()
		if err == nil && current == text {
			_ = c.backend.WriteAll("")
		}
	}()

	return done, nil
}

// IsAvailable returns true if clipboard functionality is available
func (c *Clipboard) IsAvailable() bool {
	_, err := c.backend.ReadAll()
	return err == nil
}

// Clear clears the clipboard
func (c *Clipboard) Clear() error {
	return c.backend.WriteAll("")
}
