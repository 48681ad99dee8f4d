package auth

import (
	"context"
	"net/http"

	"github.com/kroma-labs/sentinel-mobile/httpclient"
)

// BearerTokenInterceptor sets "Authorization: Bearer <access token>" on
// requests that carry no Authorization header yet. Requests of a device
// without a token are sent unchanged.
type BearerTokenInterceptor struct {
	provider TokenProvider
}

var _ httpclient.RequestInterceptor = (*BearerTokenInterceptor)(nil)

// NewBearerTokenInterceptor returns an interceptor reading tokens from provider.
func NewBearerTokenInterceptor(provider TokenProvider) *BearerTokenInterceptor {
	return &BearerTokenInterceptor{provider: provider}
}

// Intercept implements httpclient.RequestInterceptor.
func (i *BearerTokenInterceptor) Intercept(
	ctx context.Context,
	req *http.Request,
	_ *httpclient.Client,
) (*http.Request, error) {
	if req.Header.Get("Authorization") != "" {
		return req, nil
	}
	token, ok := i.provider.Token(ctx)
	if !ok || token.AccessToken == "" {
		return req, nil
	}

	h := httpclient.BearerTokenHeader(token.AccessToken)
	req.Header.Set(h.Name, h.Value)
	return req, nil
}

// NewBearerTokenChain returns the chain most clients install: the bearer
// interceptor plus the refreshing retrier. A nil exchanger uses
// HTTPExchanger.
func NewBearerTokenChain(provider TokenProvider, exchanger Exchanger) *httpclient.Interceptor {
	return httpclient.NewInterceptor(
		[]httpclient.RequestInterceptor{NewBearerTokenInterceptor(provider)},
		[]httpclient.RequestRetrier{NewBearerTokenRetrier(provider, exchanger)},
	)
}
