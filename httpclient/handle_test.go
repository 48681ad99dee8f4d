package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/sentinel-mobile/reachability"
)

func TestRequest_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("given built request, then it is registered but not sent", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
		c := newTestClient(t, mock)

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)

		assert.Equal(t, StateInitialized, req.State())
		assert.Equal(t, 1, c.ActiveRequests())
		found, ok := c.LookupRequest(req.ID())
		assert.True(t, ok)
		assert.Same(t, req, found)
		assert.Zero(t, mock.RequestCount())

		req.Cancel()
	})

	t.Run("given successful resume, then emits events in order and leaves the registry", func(t *testing.T) {
		t.Parallel()

		rec := &eventRecorder{}
		mock := NewMockTransport().StubResponse(http.StatusOK, `{"id":"1"}`)
		c := newTestClient(t, mock, WithMonitors(rec))

		req, err := c.Get("api/videos/1").Validate().Build(context.Background())
		require.NoError(t, err)
		require.NoError(t, req.Resume().Wait(context.Background()))
		require.NoError(t, c.Close())

		assert.Equal(t, StateFinished, req.State())
		assert.Equal(t, 0, c.ActiveRequests())
		_, ok := c.LookupRequest(req.ID())
		assert.False(t, ok)
		assert.Equal(t, []EventKind{
			EventResumed,
			EventCreatedURLRequest,
			EventAdaptedRequest,
			EventTaskCreated,
			EventMetricsCollected,
			EventTaskCompleted,
			EventValidated,
			EventFinished,
		}, rec.Kinds())
		for _, e := range rec.Events() {
			assert.Same(t, req, e.Request)
		}
		assert.Equal(t, `{"id":"1"}`, string(req.Data()))
		assert.Len(t, req.Attempts(), 1)
		assert.NotNil(t, req.Metrics())
		assert.Contains(t, req.CurlCommand(), testBaseURL+"/api/videos/1")
	})

	t.Run("given resume twice, then sends once", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
		c := newTestClient(t, mock)

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)
		req.Resume()
		req.Resume()
		require.NoError(t, req.Wait(context.Background()))

		assert.Equal(t, 1, mock.RequestCount())
	})
}

func TestRequest_Cancel(t *testing.T) {
	t.Parallel()

	t.Run("given cancel before resume, then terminal and never sent", func(t *testing.T) {
		t.Parallel()

		rec := &eventRecorder{}
		mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
		c := newTestClient(t, mock, WithMonitors(rec))

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)
		req.Cancel()
		req.Resume()
		req.Cancel()
		require.NoError(t, c.Close())

		assert.Equal(t, StateCancelled, req.State())
		assert.True(t, IsKind(req.Err(), KindExplicitlyCancelled))
		assert.Zero(t, mock.RequestCount())
		assert.Equal(t, 0, c.ActiveRequests())
		assert.Equal(t, []EventKind{EventCancelled}, rec.Kinds())
	})

	t.Run("given cancel while in flight, then aborts the attempt and emits nothing afterwards", func(t *testing.T) {
		t.Parallel()

		rec := &eventRecorder{}
		started := make(chan struct{})
		mock := NewMockTransport().StubHandler(nil, func(req *http.Request) (*http.Response, error) {
			close(started)
			<-req.Context().Done()
			return nil, req.Context().Err()
		})
		c := newTestClient(t, mock, WithMonitors(rec), WithInterceptor(Retriers(alwaysRetry())))

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)
		req.Resume()
		<-started
		req.Cancel()

		err = req.Wait(context.Background())
		require.NoError(t, c.Close())

		assert.True(t, IsKind(err, KindExplicitlyCancelled))
		assert.Equal(t, StateCancelled, req.State())
		assert.Equal(t, 1, mock.RequestCount())
		kinds := rec.Kinds()
		require.NotEmpty(t, kinds)
		assert.Equal(t, EventCancelled, kinds[len(kinds)-1])
		assert.Equal(t, 1, rec.Count(EventCancelled))
		assert.Zero(t, rec.Count(EventFinished))
	})

	t.Run("given caller context cancelled, then request is cancelled", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
		c := newTestClient(t, mock)

		ctx, cancel := context.WithCancel(context.Background())
		req, err := c.Get("api/videos").Build(ctx)
		require.NoError(t, err)
		cancel()

		select {
		case <-req.Done():
		case <-time.After(time.Second):
			t.Fatal("request not cancelled")
		}
		assert.Equal(t, StateCancelled, req.State())
		assert.True(t, IsKind(req.Err(), KindExplicitlyCancelled))
	})
}

func TestRequest_Suspend(t *testing.T) {
	t.Parallel()

	t.Run("given suspend during an attempt, then completion waits for resume", func(t *testing.T) {
		t.Parallel()

		rec := &eventRecorder{}
		started := make(chan struct{})
		release := make(chan struct{})
		mock := NewMockTransport().StubHandler(nil, func(req *http.Request) (*http.Response, error) {
			close(started)
			<-release
			return newMockResponse(req, MockResponse{StatusCode: http.StatusOK, Body: `{}`}), nil
		})
		c := newTestClient(t, mock, WithMonitors(rec))

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)
		req.Resume()
		<-started
		req.Suspend()
		close(release)

		select {
		case <-req.Done():
			t.Fatal("suspended request completed")
		case <-time.After(50 * time.Millisecond):
		}
		assert.Equal(t, StateSuspended, req.State())

		req.Resume()
		require.NoError(t, req.Wait(context.Background()))
		require.NoError(t, c.Close())

		assert.Equal(t, StateFinished, req.State())
		assert.Equal(t, 1, rec.Count(EventSuspended))
		assert.Equal(t, 2, rec.Count(EventResumed))
	})

	t.Run("given suspend on an initialized request, then it has no effect", func(t *testing.T) {
		t.Parallel()

		c := newTestClient(t, NewMockTransport())

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)
		req.Suspend()

		assert.Equal(t, StateInitialized, req.State())
		req.Cancel()
	})

	t.Run("given cancel while suspended, then cancels", func(t *testing.T) {
		t.Parallel()

		started := make(chan struct{})
		release := make(chan struct{})
		mock := NewMockTransport().StubHandler(nil, func(req *http.Request) (*http.Response, error) {
			close(started)
			<-release
			return newMockResponse(req, MockResponse{StatusCode: http.StatusOK}), nil
		})
		c := newTestClient(t, mock)

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)
		req.Resume()
		<-started
		req.Suspend()
		req.Cancel()
		close(release)

		assert.True(t, IsKind(req.Wait(context.Background()), KindExplicitlyCancelled))
		assert.Equal(t, StateCancelled, req.State())
	})
}

func TestRequest_Retry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		maxRetries   int
		responses    []MockResponse
		retrier      RequestRetrier
		wantRequests int
		wantRetries  int
		wantErrKind  ErrorKind
		wantStatus   int
	}{
		{
			name:       "given transient failures, then retries until success",
			maxRetries: 3,
			responses: []MockResponse{
				{StatusCode: http.StatusServiceUnavailable},
				{StatusCode: http.StatusBadGateway},
				{StatusCode: http.StatusOK, Body: `{}`},
			},
			retrier:      TransientRetrier(nil),
			wantRequests: 3,
			wantRetries:  2,
			wantStatus:   http.StatusOK,
		},
		{
			name:         "given a retrier that always votes retry, then stops at the ceiling",
			maxRetries:   2,
			responses:    []MockResponse{{StatusCode: http.StatusInternalServerError}},
			retrier:      alwaysRetry(),
			wantRequests: 3,
			wantRetries:  2,
			wantErrKind:  KindResponseValidationFailed,
			wantStatus:   http.StatusInternalServerError,
		},
		{
			name:         "given zero max retries, then sends once",
			maxRetries:   0,
			responses:    []MockResponse{{StatusCode: http.StatusServiceUnavailable}},
			retrier:      alwaysRetry(),
			wantRequests: 1,
			wantErrKind:  KindResponseValidationFailed,
			wantStatus:   http.StatusServiceUnavailable,
		},
		{
			name:         "given no retriers, then sends once",
			maxRetries:   3,
			responses:    []MockResponse{{StatusCode: http.StatusServiceUnavailable}},
			wantRequests: 1,
			wantErrKind:  KindResponseValidationFailed,
			wantStatus:   http.StatusServiceUnavailable,
		},
		{
			name:         "given a non transient status, then does not retry",
			maxRetries:   3,
			responses:    []MockResponse{{StatusCode: http.StatusNotFound}},
			retrier:      TransientRetrier(nil),
			wantRequests: 1,
			wantErrKind:  KindResponseValidationFailed,
			wantStatus:   http.StatusNotFound,
		},
		{
			name:         "given network errors, then retries them",
			maxRetries:   1,
			responses:    []MockResponse{{Err: errors.New("connection reset by peer")}},
			retrier:      TransientRetrier(nil),
			wantRequests: 2,
			wantRetries:  1,
			wantErrKind:  KindSessionTaskFailed,
		},
		{
			name:         "given status retrier, then retries listed codes",
			maxRetries:   3,
			responses:    []MockResponse{{StatusCode: http.StatusConflict}, {StatusCode: http.StatusOK}},
			retrier:      StatusRetrier(http.StatusConflict),
			wantRequests: 2,
			wantRetries:  1,
			wantStatus:   http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := &eventRecorder{}
			mock := NewMockTransport().StubSequence(nil, tt.responses...)
			opts := []Option{WithConfig(retryConfig(tt.maxRetries)), WithMonitors(rec)}
			if tt.retrier != nil {
				opts = append(opts, WithInterceptor(Retriers(tt.retrier)))
			}
			c := newTestClient(t, mock, opts...)

			resp, err := c.Get("api/videos").Validate().Do(context.Background())
			require.NoError(t, c.Close())

			assert.Equal(t, tt.wantRequests, mock.RequestCount())
			assert.Equal(t, tt.wantRetries, rec.Count(EventRetrying))
			if tt.wantErrKind != KindUnknown {
				assert.True(t, IsKind(err, tt.wantErrKind), "got %v", err)
			} else {
				assert.NoError(t, err)
			}
			if tt.wantStatus != 0 {
				require.NotNil(t, resp)
				assert.Equal(t, tt.wantStatus, resp.StatusCode)
				assert.Equal(t, tt.wantRetries, resp.Handle().RetryCount())
				assert.Len(t, resp.Handle().Attempts(), tt.wantRequests)
			}
		})
	}
}

func TestRequest_RetryBackOff(t *testing.T) {
	t.Parallel()

	cfg := retryConfig(1)
	cfg.Retry = RetryConfig{InitialInterval: 30 * time.Millisecond, JitterFactor: 0.01}
	mock := NewMockTransport().StubSequence(nil,
		MockResponse{StatusCode: http.StatusServiceUnavailable},
		MockResponse{StatusCode: http.StatusOK},
	)
	c := newTestClient(t, mock, WithConfig(cfg), WithInterceptor(Retriers(TransientRetrier(nil))))

	start := time.Now()
	_, err := c.Get("api/videos").Validate().Do(context.Background())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	assert.Equal(t, 2, mock.RequestCount())
}

func TestRequest_Failures(t *testing.T) {
	t.Parallel()

	t.Run("given interceptor failure, then adaptation failed and nothing is sent", func(t *testing.T) {
		t.Parallel()

		rec := &eventRecorder{}
		errNoToken := errors.New("no token")
		mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
		c := newTestClient(t, mock, WithMonitors(rec))

		_, err := c.Get("api/videos").
			Interceptor(Interceptors(InterceptorFunc(func(context.Context, *http.Request, *Client) (*http.Request, error) {
				return nil, errNoToken
			}))).
			Do(context.Background())
		require.NoError(t, c.Close())

		assert.True(t, IsKind(err, KindRequestAdaptationFailed))
		assert.ErrorIs(t, err, errNoToken)
		assert.Zero(t, mock.RequestCount())
		assert.Equal(t, 1, rec.Count(EventAdaptationFailed))
	})

	t.Run("given validation failure, then returns the response with the error", func(t *testing.T) {
		t.Parallel()

		mock := NewMockTransport().StubResponse(http.StatusNotFound, `{"fault":{"type":"NotFound","message":"Video not found"}}`)
		c := newTestClient(t, mock)

		resp, err := c.Get("api/videos/9").ValidateWith(ValidateFault).Validate().Do(context.Background())

		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.True(t, IsKind(err, KindResponseValidationFailed))
		var fault *FaultError
		require.ErrorAs(t, err, &fault)
		assert.Equal(t, "Video not found", err.Error())
	})

	t.Run("given transport error, then session task failed without response", func(t *testing.T) {
		t.Parallel()

		errDown := errors.New("network is down")
		c := newTestClient(t, NewMockTransport().StubError(errDown))

		resp, err := c.Get("api/videos").Do(context.Background())

		assert.Nil(t, resp)
		assert.True(t, IsKind(err, KindSessionTaskFailed))
		assert.ErrorIs(t, err, errDown)
	})

	t.Run("given resource timeout, then request ends with session task failed", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.ResourceTimeout = 30 * time.Millisecond
		mock := NewMockTransport().StubHandler(nil, func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})
		c := newTestClient(t, mock, WithConfig(cfg))

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)
		err = req.Resume().Wait(context.Background())

		assert.True(t, IsKind(err, KindSessionTaskFailed))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.True(t, req.State().IsTerminal())
	})

	t.Run("given resource timeout on a request never resumed, then it expires and leaves the registry", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.ResourceTimeout = 20 * time.Millisecond
		mock := NewMockTransport().StubResponse(http.StatusOK, "")
		c := newTestClient(t, mock, WithConfig(cfg))

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)

		err = req.Wait(context.Background())

		assert.True(t, IsKind(err, KindSessionTaskFailed))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, StateCancelled, req.State())
		assert.Zero(t, c.ActiveRequests())
		assert.Zero(t, mock.RequestCount())
	})

	t.Run("given a waiting caller whose context ends, then the request keeps running", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		mock := NewMockTransport().StubHandler(nil, func(req *http.Request) (*http.Response, error) {
			<-release
			return newMockResponse(req, MockResponse{StatusCode: http.StatusOK}), nil
		})
		c := newTestClient(t, mock)

		req, err := c.Get("api/videos").Build(context.Background())
		require.NoError(t, err)
		req.Resume()

		waitCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, req.Wait(waitCtx), context.DeadlineExceeded)
		assert.False(t, req.State().IsTerminal())

		close(release)
		assert.NoError(t, req.Wait(context.Background()))
	})
}

func TestRequest_CellularAccess(t *testing.T) {
	t.Parallel()

	expensive := reachability.PathMonitorFunc(func(ctx context.Context, update func(reachability.Path)) error {
		update(reachability.Path{Status: reachability.StatusSatisfied, IsExpensive: true})
		<-ctx.Done()
		return ctx.Err()
	})

	tests := []struct {
		name         string
		allowed      bool
		wantRequests int
		wantErr      error
	}{
		{
			name:         "given cellular allowed, then sends",
			allowed:      true,
			wantRequests: 1,
		},
		{
			name:    "given cellular denied on an expensive path, then fails before sending",
			allowed: false,
			wantErr: ErrCellularAccessDenied,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			cfg.AllowsCellularAccess = tt.allowed
			mock := NewMockTransport().StubResponse(http.StatusOK, `{}`)
			c := newTestClient(t, mock, WithConfig(cfg), WithPathMonitor(expensive))
			require.Eventually(t, func() bool { return c.Status().IsExpensive }, time.Second, 5*time.Millisecond)

			_, err := c.Get("api/videos").Do(context.Background())

			assert.Equal(t, tt.wantRequests, mock.RequestCount())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsKind(err, KindSessionTaskFailed))
				return
			}
			assert.NoError(t, err)
		})
	}
}
