package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/calndr/calndr/internal/config"
	"github.com/calndr/calndr/internal/storage"
)

type BearerAuth struct {
	cfg    config.AuthConfig
	store  storage.Store
	logger zerolog.Logger

	keyset jwk.Set
	ksAt   time.Time
	ksTTL  time.Duration

	verCache *memo[string, *Principal]
}

func NewBearerAuth(cfg config.AuthConfig, store storage.Store, logger zerolog.Logger) *BearerAuth {
	return &BearerAuth{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		ksTTL:    10 * time.Minute,
		verCache: newMemo[string, *Principal](),
	}
}

// Authenticate validates a bearer token and maps its subject to a family
// member. Verified tokens are memoized for two minutes.
func (b *BearerAuth) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if p, ok := b.verCache.Get(token); ok && p != nil {
		return p, nil
	}

	if b.cfg.JWKSURL == "" {
		return nil, errors.New("no jwt validation configured")
	}

	set := b.keyset
	var err error
	if set == nil || time.Since(b.ksAt) > b.ksTTL {
		set, err = jwk.Fetch(ctx, b.cfg.JWKSURL)
		if err != nil {
			return nil, err
		}
		b.keyset = set
		b.ksAt = time.Now()
	}

	tok, err := jwt.Parse([]byte(token), jwt.WithKeySet(set), jwt.WithValidate(true))
	if err != nil {
		return nil, err
	}

	if iss := tok.Issuer(); b.cfg.Issuer != "" && iss != b.cfg.Issuer {
		return nil, errors.New("issuer mismatch")
	}
	if aud := tok.Audience(); len(aud) > 0 && b.cfg.Audience != "" {
		found := false
		for _, a := range aud {
			if a == b.cfg.Audience {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.New("audience mismatch")
		}
	}

	sub := tok.Subject()
	if sub == "" {
		return nil, errors.New("no sub")
	}

	user, err := b.lookup(ctx, sub)
	if err != nil {
		return nil, err
	}

	p := &Principal{UserID: user.ID, FamilyID: user.FamilyID, FirstName: user.FirstName}
	b.verCache.Set(token, p, time.Now().Add(2*time.Minute))
	return p, nil
}

// Subjects are either the user's id or their email, depending on the issuer.
func (b *BearerAuth) lookup(ctx context.Context, sub string) (*storage.User, error) {
	if strings.Contains(sub, "@") {
		return b.store.GetUserByEmail(ctx, sub)
	}
	return b.store.GetUserByID(ctx, sub)
}
