package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when revealing a token after Destroy.
var ErrDestroyed = errors.New("token has been destroyed")

// Token holds a client token inside a memguard enclave.
type Token struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// NewToken seals value into a new enclave. An empty value produces an
// empty token that reveals "".
func NewToken(value string) *Token {
	t := &Token{}
	if value != "" {
		// NewEnclave wipes its input, so hand it a private copy.
		t.enclave = memguard.NewEnclave([]byte(value))
	}
	return t
}

// Empty reports whether the token holds no value.
func (t *Token) Empty() bool {
	if t == nil {
		return true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enclave == nil
}

// Reveal decrypts the token and returns a copy of its value. The locked
// buffer used for decryption is wiped before returning.
func (t *Token) Reveal() (string, error) {
	if t == nil {
		return "", nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.destroyed {
		return "", ErrDestroyed
	}
	if t.enclave == nil {
		return "", nil
	}

	locked, err := t.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// Destroy drops the enclave. It is idempotent; Reveal fails afterwards.
func (t *Token) Destroy() {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.enclave = nil
	t.destroyed = true
}
