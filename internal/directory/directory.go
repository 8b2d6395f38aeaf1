package directory

import (
	"context"
	"errors"
	"strings"

	"github.com/ent0n29/receptionist/internal/session"
)

// UnknownOwnerID is recorded when the owning account cannot be resolved.
const UnknownOwnerID = "unknown"

// ErrNotFound reports that no account is registered for a phone number.
var ErrNotFound = errors.New("directory: number not registered")

// Directory maps a called phone number to the account answering it.
type Directory interface {
	LookupByCalledNumber(ctx context.Context, number string) (session.AgentConfig, error)
	ResolveOwnerID(ctx context.Context, number string) (string, error)
	Close() error
}

// Options configure NewDirectory.
type Options struct {
	DatabaseURL string
	SeedFile    string
	DevOwnerID  string
}

// NewDirectory returns a Postgres-backed directory when DatabaseURL is set,
// otherwise a static one seeded from SeedFile with a built-in dev entry.
func NewDirectory(ctx context.Context, opts Options) (Directory, error) {
	if strings.TrimSpace(opts.DatabaseURL) == "" {
		return NewStaticDirectory(opts.SeedFile, opts.DevOwnerID)
	}
	return NewPostgresDirectory(ctx, opts.DatabaseURL)
}

// NormalizeNumber strips formatting so "+1 (555) 123-0000" and "+15551230000"
// address the same entry.
func NormalizeNumber(number string) string {
	number = strings.TrimSpace(number)
	var b strings.Builder
	b.Grow(len(number))
	for i, r := range number {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
