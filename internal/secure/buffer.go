// Package secure holds secret bytes in locked, wipe-on-release memory.
//
// A Buffer never hands out its backing slice except inside a scoped callback
// (WithRead / WithMutate). Once wiped, every access fails with ErrWiped.
package secure

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/awnumar/memguard"
)

// Policy controls when a Buffer wipes itself.
type Policy int

const (
	// WipeOnRelease wipes the buffer when its owner calls Release.
	WipeOnRelease Policy = iota
	// WipeAfterFirstRead wipes the buffer as soon as the first WithRead returns.
	WipeAfterFirstRead
	// Manual only wipes on an explicit Wipe call; Release is a no-op.
	Manual
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case WipeOnRelease:
		return "wipe-on-release"
	case WipeAfterFirstRead:
		return "wipe-after-first-read"
	case Manual:
		return "manual"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ErrWiped is returned by any access to an empty or already wiped buffer.
var ErrWiped = errors.New("secure: buffer has been wiped")

// Buffer owns a copy of secret bytes in memguard-locked memory.
// The pages are kept read-only outside of WithMutate.
//
// Callbacks must not call back into the same Buffer.
type Buffer struct {
	mu     sync.Mutex
	lb     *memguard.LockedBuffer
	policy Policy
	wiped  bool
	// seq orders lock acquisition when two buffers are held at once.
	seq uint64
}

var bufferSeq atomic.Uint64

// New copies b into a new Buffer. The source slice is left untouched; the
// caller remains responsible for zeroing it. An empty b yields a buffer that
// is already wiped.
func New(b []byte, policy Policy) *Buffer {
	buf := &Buffer{policy: policy, seq: bufferSeq.Add(1)}
	if len(b) == 0 {
		buf.wiped = true
		return buf
	}

	lb := memguard.NewBuffer(len(b))
	lb.Copy(b)
	lb.Freeze()
	buf.lb = lb
	return buf
}

// NewRandom fills a new Buffer of size n directly from r, so the random bytes
// never exist outside locked memory.
func NewRandom(r io.Reader, n int, policy Policy) (*Buffer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("secure: invalid random buffer size %d", n)
	}

	lb := memguard.NewBuffer(n)
	if _, err := io.ReadFull(r, lb.Bytes()); err != nil {
		lb.Destroy()
		return nil, fmt.Errorf("secure: failed to read random bytes: %w", err)
	}
	lb.Freeze()

	return &Buffer{lb: lb, policy: policy, seq: bufferSeq.Add(1)}, nil
}

// With creates a Buffer from b, passes it to fn and wipes it on every exit
// path, including a panic inside fn.
func With(b []byte, policy Policy, fn func(*Buffer) error) error {
	buf := New(b, policy)
	defer buf.Wipe()
	return fn(buf)
}

// Policy returns the wipe policy the buffer was created with.
func (b *Buffer) Policy() Policy {
	return b.policy
}

// WithRead calls fn with a read-only view of the secret. The slice must not
// be retained after fn returns. Under WipeAfterFirstRead the buffer is wiped
// before WithRead returns, whatever fn returned.
func (b *Buffer) WithRead(fn func([]byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wiped || b.lb == nil {
		return ErrWiped
	}
	if b.policy == WipeAfterFirstRead {
		defer b.wipeLocked()
	}

	return fn(b.lb.Bytes())
}

// WithMutate calls fn with a writable view of the secret.
func (b *Buffer) WithMutate(fn func([]byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.wiped || b.lb == nil {
		return ErrWiped
	}

	b.lb.Melt()
	defer func() {
		if b.lb != nil {
			b.lb.Freeze()
		}
	}()

	return fn(b.lb.Bytes())
}

// Wipe zeroes and releases the secret. Calling it again is a no-op.
func (b *Buffer) Wipe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wipeLocked()
}

func (b *Buffer) wipeLocked() {
	if b.wiped {
		return
	}
	if b.lb != nil {
		b.lb.Destroy()
		b.lb = nil
	}
	b.wiped = true
}

// Release is called by the owner when it is done with the buffer. It wipes
// unless the buffer was created with the Manual policy.
func (b *Buffer) Release() {
	if b == nil || b.policy == Manual {
		return
	}
	b.Wipe()
}

// Len returns the secret length, or zero once wiped.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.wiped || b.lb == nil {
		return 0
	}
	return b.lb.Size()
}

// IsWiped reports whether the buffer has been released.
func (b *Buffer) IsWiped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wiped
}

// Clone copies the secret into a new, independently owned Buffer.
func (b *Buffer) Clone(policy Policy) (*Buffer, error) {
	var out *Buffer
	err := b.WithRead(func(p []byte) error {
		out = New(p, policy)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Equal compares two buffers in constant time with respect to their contents.
// Both buffers are locked in creation order, so a.Equal(b) and b.Equal(a)
// may run concurrently.
func (b *Buffer) Equal(other *Buffer) (bool, error) {
	if other == nil {
		return false, ErrWiped
	}
	if b == other {
		var ok bool
		err := b.WithRead(func([]byte) error {
			ok = true
			return nil
		})
		return ok, err
	}

	first, second := b, other
	if second.seq < first.seq {
		first, second = second, first
	}

	var equal bool
	err := first.WithRead(func(x []byte) error {
		return second.WithRead(func(y []byte) error {
			equal = subtle.ConstantTimeCompare(x, y) == 1
			return nil
		})
	})
	return equal, err
}

// Zeroize overwrites an explicit boundary copy of secret bytes.
func Zeroize(b []byte) {
	if len(b) == 0 {
		return
	}
	memguard.WipeBytes(b)
}

// Purge destroys every live buffer in the process. Call it on exit paths.
func Purge() {
	memguard.Purge()
}
