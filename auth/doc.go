// Package auth attaches bearer credentials to httpclient requests and
// refreshes them when the API rejects them.
//
// A device is registered once with HTTPAuthenticationClient, which stores
// the returned AuthToken through a TokenProvider. Afterwards every request
// built by the client carries the access token, and a 401 triggers a single
// token exchange shared by every request that failed at the same time.
//
//	store := storage.NewInMemory()
//	tokens := auth.NewBearerTokenProvider(store)
//
//	client, err := httpclient.New(baseURL,
//	    httpclient.WithInterceptor(auth.NewBearerTokenChain(tokens, nil)),
//	)
//	if err != nil {
//	    return err
//	}
//
//	authClient := auth.NewHTTPAuthenticationClient(apiKey, client, tokens)
//	if err := authClient.Authenticate(ctx, signature, payload); err != nil {
//	    return err
//	}
//
// A 401 is only seen by the retrier when the request validates its status,
// so requests that should refresh their credential use Validate.
package auth
