package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/sentinel-mobile/httpclient"
	"github.com/kroma-labs/sentinel-mobile/storage"
)

const testBaseURL = "https://api.example.com"

var (
	staleToken = AuthToken{ID: "dev-1", AccessToken: "access-1", RefreshToken: "refresh-1"}
	freshToken = AuthToken{ID: "dev-1", AccessToken: "access-2", RefreshToken: "refresh-2"}
)

// countingStore counts writes to the wrapped store.
type countingStore struct {
	storage.Storage
	writes atomic.Int32
}

func (s *countingStore) Write(ctx context.Context, key string, value []byte) error {
	s.writes.Add(1)
	return s.Storage.Write(ctx, key, value)
}

func newProvider(t *testing.T, token *AuthToken) (*BearerTokenProvider, *countingStore) {
	t.Helper()

	store := &countingStore{Storage: storage.NewInMemory()}
	if token != nil {
		require.NoError(t, storage.WriteJSON(context.Background(), store.Storage, TokenStorageKey, *token))
	}
	return NewBearerTokenProvider(store), store
}

type mockExchanger struct {
	mock.Mock
}

func (m *mockExchanger) Exchange(ctx context.Context, client *httpclient.Client, token AuthToken) (AuthToken, error) {
	args := m.Called(ctx, client, token)
	return args.Get(0).(AuthToken), args.Error(1)
}

func jsonResponse(req *http.Request, status int, v any) *http.Response {
	var body []byte
	if v != nil {
		body, _ = json.Marshal(v)
	}
	return &http.Response{
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

func pathIs(path string) func(*http.Request) bool {
	return func(r *http.Request) bool { return r.URL.Path == path }
}

// protectedAPI answers 200 to requests carrying the fresh access token and
// 401 to everything else.
func protectedAPI(mt *httpclient.MockTransport, path string) *httpclient.MockTransport {
	return mt.StubHandler(pathIs(path), func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Authorization") == "Bearer "+freshToken.AccessToken {
			return jsonResponse(r, http.StatusOK, map[string]string{"status": "ok"}), nil
		}
		return jsonResponse(r, http.StatusUnauthorized, map[string]string{"error": "expired"}), nil
	})
}

func newClient(t *testing.T, mt *httpclient.MockTransport, chain *httpclient.Interceptor, opts ...httpclient.Option) *httpclient.Client {
	t.Helper()

	opts = append([]httpclient.Option{
		httpclient.WithMockTransport(mt),
		httpclient.WithInterceptor(chain),
	}, opts...)
	c, err := httpclient.New(testBaseURL, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// logBuffer collects log output written from request goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func withDebugLogger(buf *logBuffer) httpclient.Option {
	return httpclient.WithLogger(zerolog.New(buf).Level(zerolog.DebugLevel))
}
