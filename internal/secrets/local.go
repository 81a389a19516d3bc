package secrets

import (
	"context"
	"maps"

	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
)

// LocalBackend serves sector secrets from an explicit in-memory map,
// populated from the `sector_secrets` configuration option.
type LocalBackend struct {
	secrets map[string][]byte
}

// NewLocalBackend copies cfg so later mutation by the caller cannot affect
// the backend's view.
func NewLocalBackend(cfg map[string][]byte) *LocalBackend {
	copied := make(map[string][]byte, len(cfg))
	for k, v := range cfg {
		copied[normalizeSector(k)] = append([]byte(nil), v...)
	}
	return &LocalBackend{secrets: copied}
}

func (l *LocalBackend) Name() string { return "local" }

func (l *LocalBackend) FetchAll(ctx context.Context) (map[string][]byte, error) {
	return maps.Clone(l.secrets), nil
}

func (l *LocalBackend) Fetch(ctx context.Context, sector string) ([]byte, error) {
	secret, ok := l.secrets[normalizeSector(sector)]
	if !ok {
		return nil, internalerrors.SecretMissing(sector)
	}
	return secret, nil
}
