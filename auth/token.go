package auth

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kroma-labs/sentinel-mobile/storage"
)

// TokenStorageKey is the storage key of the device's AuthToken.
const TokenStorageKey = "org.tru-video.auth-token"

// AuthToken is the credential pair issued to a registered device.
type AuthToken struct {
	ID           string `json:"id"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenProvider loads and persists the device's AuthToken.
type TokenProvider interface {
	// Token returns the stored token. The boolean is false when the device
	// has no usable token.
	Token(ctx context.Context) (AuthToken, bool)

	// Save replaces the stored token.
	Save(ctx context.Context, token AuthToken) error
}

// ProviderOption configures a BearerTokenProvider.
type ProviderOption func(*BearerTokenProvider)

// WithTokenKey overrides TokenStorageKey.
func WithTokenKey(key string) ProviderOption {
	return func(p *BearerTokenProvider) {
		p.key = key
	}
}

// WithProviderLogger sets the logger used to report unreadable tokens.
func WithProviderLogger(logger zerolog.Logger) ProviderOption {
	return func(p *BearerTokenProvider) {
		p.logger = logger
	}
}

// BearerTokenProvider keeps the AuthToken as JSON in a storage.Storage.
type BearerTokenProvider struct {
	store  storage.Storage
	key    string
	logger zerolog.Logger
}

var _ TokenProvider = (*BearerTokenProvider)(nil)

// NewBearerTokenProvider returns a provider backed by store.
func NewBearerTokenProvider(store storage.Storage, opts ...ProviderOption) *BearerTokenProvider {
	p := &BearerTokenProvider{
		store:  store,
		key:    TokenStorageKey,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token implements TokenProvider. A token that cannot be read or decoded is
// treated as absent.
func (p *BearerTokenProvider) Token(ctx context.Context) (AuthToken, bool) {
	var token AuthToken
	ok, err := storage.ReadJSON(ctx, p.store, p.key, &token)
	if err != nil {
		p.logger.Warn().Err(err).Str("key", p.key).Msg("stored auth token unreadable")
		return AuthToken{}, false
	}
	return token, ok
}

// Save implements TokenProvider.
func (p *BearerTokenProvider) Save(ctx context.Context, token AuthToken) error {
	return storage.WriteJSON(ctx, p.store, p.key, token)
}

// Remove deletes the stored token, signing the device out.
func (p *BearerTokenProvider) Remove(ctx context.Context) error {
	return p.store.Delete(ctx, p.key)
}
