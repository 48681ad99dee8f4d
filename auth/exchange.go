package auth

import (
	"context"
	"net/http"

	"github.com/kroma-labs/sentinel-mobile/httpclient"
)

// Exchanger trades a token's refresh credential for a new token.
type Exchanger interface {
	Exchange(ctx context.Context, client *httpclient.Client, token AuthToken) (AuthToken, error)
}

// ExchangerFunc adapts a function to Exchanger.
type ExchangerFunc func(ctx context.Context, client *httpclient.Client, token AuthToken) (AuthToken, error)

// Exchange implements Exchanger.
func (f ExchangerFunc) Exchange(
	ctx context.Context,
	client *httpclient.Client,
	token AuthToken,
) (AuthToken, error) {
	return f(ctx, client, token)
}

// HTTPExchanger calls POST api/authenticate/exchange/{id} with the refresh
// credential as bearer token.
type HTTPExchanger struct{}

// Exchange implements Exchanger.
func (HTTPExchanger) Exchange(
	ctx context.Context,
	client *httpclient.Client,
	token AuthToken,
) (AuthToken, error) {
	return httpclient.Fetch[AuthToken](
		ctx,
		client,
		"api/authenticate/exchange/"+token.ID,
		http.MethodPost,
		map[string]any{},
		httpclient.NewHeaders(httpclient.BearerTokenHeader(token.RefreshToken)),
	)
}

type exchangeKey struct{}

// withExchange marks ctx as belonging to a token exchange.
func withExchange(ctx context.Context) context.Context {
	return context.WithValue(ctx, exchangeKey{}, true)
}

func isExchange(ctx context.Context) bool {
	v, _ := ctx.Value(exchangeKey{}).(bool)
	return v
}
