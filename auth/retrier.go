package auth

import (
	"context"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/kroma-labs/sentinel-mobile/httpclient"
)

// refreshKey names the single refresh flight shared by all requests.
const refreshKey = "refresh"

// BearerTokenRetrier retries failed requests whose credential expired.
//
//   - 5xx responses are retried as they are.
//   - 401 responses are retried after the token is exchanged for a fresh
//     one. Concurrent 401s share one exchange and all wait for its outcome.
//   - Anything else, requests without a response and requests at the
//     client's retry ceiling are not retried.
//
// A failed refresh is logged and declined; the caller sees the original
// request's error.
type BearerTokenRetrier struct {
	provider  TokenProvider
	exchanger Exchanger
	group     singleflight.Group
}

var _ httpclient.RequestRetrier = (*BearerTokenRetrier)(nil)

// NewBearerTokenRetrier returns a retrier refreshing tokens of provider
// through exchanger. A nil exchanger uses HTTPExchanger.
func NewBearerTokenRetrier(provider TokenProvider, exchanger Exchanger) *BearerTokenRetrier {
	if exchanger == nil {
		exchanger = HTTPExchanger{}
	}
	return &BearerTokenRetrier{provider: provider, exchanger: exchanger}
}

// Retry implements httpclient.RequestRetrier.
func (r *BearerTokenRetrier) Retry(
	ctx context.Context,
	req *httpclient.Request,
	client *httpclient.Client,
	_ error,
) httpclient.RetryPolicy {
	attempt, ok := lastAttempt(req)
	if !ok || attempt.Response == nil {
		return httpclient.DoNotRetry
	}
	if req.RetryCount() >= client.MaxRetries() {
		return httpclient.DoNotRetry
	}

	switch status := attempt.Response.StatusCode; {
	case status == http.StatusUnauthorized:
		if isExchange(ctx) {
			// The refresh credential itself was rejected.
			return httpclient.DoNotRetry
		}
		if r.refreshedSince(ctx, attempt.Request) {
			return httpclient.Retry
		}
		if err := r.refresh(ctx, client); err != nil {
			logger := client.Logger()
			logger.Warn().
				Err(err).
				Str("request_id", req.ID().String()).
				Msg("auth token refresh failed")
			return httpclient.DoNotRetry
		}
		return httpclient.Retry

	case status >= 500 && status <= 599:
		return httpclient.Retry

	default:
		return httpclient.DoNotRetry
	}
}

// refreshedSince reports whether the stored access token differs from the
// one the failed attempt was sent with, meaning another request already
// refreshed it.
func (r *BearerTokenRetrier) refreshedSince(ctx context.Context, sent *http.Request) bool {
	if sent == nil {
		return false
	}
	used := sent.Header.Get("Authorization")
	if used == "" {
		return false
	}
	token, ok := r.provider.Token(ctx)
	if !ok || token.AccessToken == "" {
		return false
	}
	return used != httpclient.BearerTokenHeader(token.AccessToken).Value
}

// refresh joins the outstanding exchange or starts one. The exchange is
// detached from ctx so a cancelled waiter does not fail the others; ctx
// only bounds how long this caller waits.
func (r *BearerTokenRetrier) refresh(ctx context.Context, client *httpclient.Client) error {
	ch := r.group.DoChan(refreshKey, func() (any, error) {
		return nil, r.exchange(context.WithoutCancel(ctx), client)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *BearerTokenRetrier) exchange(ctx context.Context, client *httpclient.Client) error {
	token, ok := r.provider.Token(ctx)
	if !ok {
		return NewError(KindUnauthenticatedDevice, nil)
	}

	fresh, err := r.exchanger.Exchange(withExchange(ctx), client, token)
	if err != nil {
		return err
	}
	if err := r.provider.Save(ctx, fresh); err != nil {
		return err
	}

	logger := client.Logger()
	logger.Debug().Str("device_id", fresh.ID).Msg("auth token refreshed")
	return nil
}

func lastAttempt(req *httpclient.Request) (httpclient.Attempt, bool) {
	attempts := req.Attempts()
	if len(attempts) == 0 {
		return httpclient.Attempt{}, false
	}
	return attempts[len(attempts)-1], true
}
