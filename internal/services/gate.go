package services

import (
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Gate modes, as reported by Gate.Mode.
const (
	GateOpen   = "open"
	GateKey    = "key"
	GateLocked = "locked"
)

// Gate authorizes privileged operations with a shared bearer key.
//
// The key may be configured in plaintext (compared in constant time) and/or
// as a bcrypt hash. Without any key the gate denies everything unless it was
// explicitly built as open.
type Gate struct {
	key  []byte
	hash []byte
	open bool
}

// NewGate builds a Gate. Surrounding whitespace in key and hash is ignored.
func NewGate(key, keyBcrypt string, open bool) *Gate {
	g := &Gate{open: open}
	if k := strings.TrimSpace(key); k != "" {
		g.key = []byte(k)
	}
	if h := strings.TrimSpace(keyBcrypt); h != "" {
		g.hash = []byte(h)
	}
	return g
}

// Mode reports how the gate behaves: open, key, or locked.
func (g *Gate) Mode() string {
	switch {
	case g.open:
		return GateOpen
	case g.key != nil || g.hash != nil:
		return GateKey
	default:
		return GateLocked
	}
}

// Authorize reports whether credential grants access.
func (g *Gate) Authorize(credential string) bool {
	if g.open {
		return true
	}
	if credential == "" {
		return false
	}
	if g.key != nil && subtle.ConstantTimeCompare([]byte(credential), g.key) == 1 {
		return true
	}
	if g.hash != nil && bcrypt.CompareHashAndPassword(g.hash, []byte(credential)) == nil {
		return true
	}
	return false
}
