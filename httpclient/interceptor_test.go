package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendHeader(value string, calls *[]string) RequestInterceptor {
	return InterceptorFunc(func(_ context.Context, req *http.Request, _ *Client) (*http.Request, error) {
		*calls = append(*calls, value)
		req.Header.Add("X-Chain", value)
		return req, nil
	})
}

func failing(err error, calls *[]string, name string) RequestInterceptor {
	return InterceptorFunc(func(_ context.Context, _ *http.Request, _ *Client) (*http.Request, error) {
		*calls = append(*calls, name)
		return nil, err
	})
}

func vote(policy RetryPolicy, calls *[]string, name string) RequestRetrier {
	return RetrierFunc(func(_ context.Context, _ *Request, _ *Client, _ error) RetryPolicy {
		*calls = append(*calls, name)
		return policy
	})
}

func TestInterceptor_Intercept(t *testing.T) {
	t.Parallel()

	errRejected := errors.New("rejected")

	tests := []struct {
		name      string
		chain     func(calls *[]string) *Interceptor
		wantCalls []string
		wantChain []string
		wantErr   error
	}{
		{
			name: "given two interceptors, then each sees the previous output",
			chain: func(calls *[]string) *Interceptor {
				return Interceptors(appendHeader("a", calls), appendHeader("b", calls))
			},
			wantCalls: []string{"a", "b"},
			wantChain: []string{"a", "b"},
		},
		{
			name: "given first interceptor fails, then the rest are not called",
			chain: func(calls *[]string) *Interceptor {
				return Interceptors(failing(errRejected, calls, "a"), appendHeader("b", calls))
			},
			wantCalls: []string{"a"},
			wantErr:   errRejected,
		},
		{
			name: "given nil chain, then request passes unchanged",
			chain: func(*[]string) *Interceptor {
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls []string
			req, _ := http.NewRequest(http.MethodGet, testBaseURL, nil)

			got, err := tt.chain(&calls).Intercept(context.Background(), req, nil)

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChain, got.Header.Values("X-Chain"))
		})
	}
}

func TestInterceptor_Retry(t *testing.T) {
	t.Parallel()

	panicking := RetrierFunc(func(context.Context, *Request, *Client, error) RetryPolicy {
		panic("retrier bug")
	})

	tests := []struct {
		name      string
		chain     func(calls *[]string) *Interceptor
		want      RetryPolicy
		wantCalls []string
	}{
		{
			name: "given a later Retry vote, then it wins and the rest are skipped",
			chain: func(calls *[]string) *Interceptor {
				return Retriers(vote(DoNotRetry, calls, "r1"), vote(Retry, calls, "r2"), vote(Retry, calls, "r3"))
			},
			want:      Retry,
			wantCalls: []string{"r1", "r2"},
		},
		{
			name: "given every retrier declines, then does not retry",
			chain: func(calls *[]string) *Interceptor {
				return Retriers(vote(DoNotRetry, calls, "r1"), vote(DoNotRetry, calls, "r2"))
			},
			want:      DoNotRetry,
			wantCalls: []string{"r1", "r2"},
		},
		{
			name: "given a panicking retrier, then it counts as a decline",
			chain: func(calls *[]string) *Interceptor {
				return Retriers(panicking, vote(Retry, calls, "r2"))
			},
			want:      Retry,
			wantCalls: []string{"r2"},
		},
		{
			name:  "given nil chain, then does not retry",
			chain: func(*[]string) *Interceptor { return nil },
			want:  DoNotRetry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var calls []string
			got := tt.chain(&calls).Retry(context.Background(), nil, nil, errors.New("failed"))

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestCompose(t *testing.T) {
	t.Parallel()

	var calls []string
	perCall := NewInterceptor(
		[]RequestInterceptor{appendHeader("call", &calls)},
		[]RequestRetrier{vote(DoNotRetry, &calls, "call-retrier")},
	)
	clientWide := NewInterceptor(
		[]RequestInterceptor{appendHeader("client", &calls), nil},
		[]RequestRetrier{vote(DoNotRetry, &calls, "client-retrier")},
	)

	composed := Compose(perCall, clientWide)
	req, _ := http.NewRequest(http.MethodGet, testBaseURL, nil)
	_, err := composed.Intercept(context.Background(), req, nil)
	require.NoError(t, err)
	composed.Retry(context.Background(), nil, nil, nil)

	assert.Equal(t, []string{"call", "client", "call-retrier", "client-retrier"}, calls)
	assert.Len(t, composed.RequestInterceptors(), 2)
	assert.Len(t, composed.RequestRetriers(), 2)

	assert.Nil(t, Compose(nil, NewInterceptor(nil, nil)))
	assert.Same(t, clientWide, Compose(nil, clientWide))
	assert.Same(t, perCall, Compose(perCall, nil))
}

func TestCorrelationIDInterceptor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing string
		want     string
	}{
		{name: "given no id, then generates one", want: "generated"},
		{name: "given an id, then keeps it", existing: "abc", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, _ := http.NewRequest(http.MethodGet, testBaseURL, nil)
			if tt.existing != "" {
				req.Header.Set("X-Correlation-ID", tt.existing)
			}

			i := CorrelationIDInterceptor("X-Correlation-ID", func() string { return "generated" })
			got, err := i.Intercept(context.Background(), req, nil)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Header.Get("X-Correlation-ID"))
		})
	}
}

func TestHeaderInterceptors(t *testing.T) {
	t.Parallel()

	req, _ := http.NewRequest(http.MethodGet, testBaseURL, nil)
	chain := Interceptors(
		UserAgentInterceptor("app/1.0"),
		APIKeyInterceptor("X-Api-Key", "secret"),
	)

	got, err := chain.Intercept(context.Background(), req, nil)

	require.NoError(t, err)
	assert.Equal(t, "app/1.0", got.Header.Get("User-Agent"))
	assert.Equal(t, "secret", got.Header.Get("X-Api-Key"))
}
