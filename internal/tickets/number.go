package tickets

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

// NumberGenerator produces globally unique ticket numbers.
type NumberGenerator interface {
	Next(now time.Time) (string, error)
}

// RandomNumbers formats TKT-<yyyymmddhhmmss>-<10 hex chars>. Forty random
// bits per second of issue time make collisions negligible; the unique index
// catches the remainder.
type RandomNumbers struct {
	Source io.Reader
}

func (g RandomNumbers) Next(now time.Time) (string, error) {
	src := g.Source
	if src == nil {
		src = rand.Reader
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("read ticket suffix: %w", err)
	}
	return fmt.Sprintf("TKT-%s-%s", now.UTC().Format("20060102150405"), strings.ToUpper(hex.EncodeToString(buf))), nil
}
