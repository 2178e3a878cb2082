package codegen

import (
	"crypto/rand"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

const (
	alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	suffixLen     = 6
	stampLayout   = "20060102150405"
	maxUnbiased   = 252 // largest multiple of len(alphabet) below 256
	orderPrefix   = "ORD-"
	paymentPrefix = "PAY"
)

// Generator produces order codes, payment transaction references and entity
// ids from an injected clock and random source.
type Generator struct {
	now  func() time.Time
	rand io.Reader
}

func New() *Generator {
	return &Generator{now: time.Now, rand: rand.Reader}
}

// NewWith is used by tests to pin the clock and the random stream.
func NewWith(now func() time.Time, r io.Reader) *Generator {
	return &Generator{now: now, rand: r}
}

// OrderCode returns ORD-<yyyyMMddHHmmss>-<6 chars>.
func (g *Generator) OrderCode() string {
	return orderPrefix + g.now().Format(stampLayout) + "-" + g.suffix()
}

// TxnRef returns PAY<yyyyMMddHHmmss><6 chars>.
func (g *Generator) TxnRef() string {
	return paymentPrefix + g.now().Format(stampLayout) + g.suffix()
}

func (g *Generator) ID() string {
	return uuid.Must(uuid.NewRandomFromReader(g.rand)).String()
}

func (g *Generator) Now() time.Time {
	return g.now()
}

func (g *Generator) suffix() string {
	out := make([]byte, 0, suffixLen)
	buf := make([]byte, suffixLen)
	for len(out) < suffixLen {
		if _, err := io.ReadFull(g.rand, buf); err != nil {
			panic("codegen: random source failed: " + err.Error())
		}
		for _, b := range buf {
			if b >= maxUnbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == suffixLen {
				break
			}
		}
	}
	return string(out)
}

// ErrCodeTaken is returned by stores when a generated code or reference
// collides with an existing one.
var ErrCodeTaken = errors.New("generated code already taken")

const maxAttempts = 3

// Retry runs fn again while it fails with ErrCodeTaken, up to three times.
// fn is expected to draw fresh codes on every call.
func Retry(fn func() error) error {
	var err error
	for range maxAttempts {
		if err = fn(); !errors.Is(err, ErrCodeTaken) {
			return err
		}
	}
	return err
}
