// Package idgen provides ID generation implementations.
package idgen

import (
	"encoding/hex"
	"strconv"
	"sync/atomic"

	"github.com/artpar/masterdata/ports"
	"github.com/google/uuid"
)

// ShortLength is the length of identifiers produced by Short.
const ShortLength = 16

// Short generates 16-character random hexadecimal identifiers.
type Short struct{}

// New returns a fresh identifier drawn from a random UUID. Byte 6 carries
// the version and byte 8 the variant, so both are skipped and all 64 bits
// of the result are random.
func (Short) New() string {
	u := uuid.New()
	b := make([]byte, 0, ShortLength/2)
	b = append(b, u[0:6]...)
	b = append(b, u[7], u[9])
	return hex.EncodeToString(b)
}

var _ ports.IDGenerator = Short{}

// Sequential generates sequential IDs (for testing).
type Sequential struct {
	prefix  string
	counter uint64
}

// NewSequential creates a sequential ID generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New generates the next sequential ID.
func (s *Sequential) New() string {
	n := atomic.AddUint64(&s.counter, 1)
	return s.prefix + strconv.FormatUint(n, 10)
}

// Reset resets the counter.
func (s *Sequential) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

var _ ports.IDGenerator = (*Sequential)(nil)
