package draws

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// Picker chooses a winning index in [0, n).
type Picker interface {
	Pick(n int) (int, error)
}

// CryptoPicker draws uniformly from a cryptographically secure source.
type CryptoPicker struct {
	// Source defaults to crypto/rand.Reader.
	Source io.Reader
}

func (p CryptoPicker) Pick(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("cannot pick from %d candidates", n)
	}
	src := p.Source
	if src == nil {
		src = rand.Reader
	}
	idx, err := rand.Int(src, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random index: %w", err)
	}
	return int(idx.Int64()), nil
}
