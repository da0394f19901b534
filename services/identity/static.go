package identitysvc

import (
	"context"
	"sync"

	"github.com/tathmini/backend/core/user"
)

// StaticVerifier resolves tokens from a fixed in-memory table. It backs
// local development and tests where no identity provider is reachable.
type StaticVerifier struct {
	mu         sync.RWMutex
	identities map[string]user.Identity // by raw token
}

var _ user.IdentityVerifier = (*StaticVerifier)(nil)

func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{identities: make(map[string]user.Identity)}
}

func (v *StaticVerifier) Register(token string, ident user.Identity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.identities[token] = ident
}

func (v *StaticVerifier) Verify(ctx context.Context, rawToken string) (user.Identity, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if ident, ok := v.identities[rawToken]; ok {
		return ident, nil
	}
	return user.Identity{}, user.ErrInvalidIdentityToken
}
