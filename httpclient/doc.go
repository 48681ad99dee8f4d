// Package httpclient is the request lifecycle layer of the mobile API
// client: it builds requests, runs them through an interceptor and retrier
// chain, tracks every in-flight request in a registry and reports lifecycle
// events to monitors.
//
// # Features
//
//   - Request handles with resume, suspend and cancel
//   - Interceptor chains (adapt before send) and retrier chains (vote after failure)
//   - Asynchronous fan-out of lifecycle events to any number of monitors
//   - Fault-body decoding of the API's error envelope
//   - Typed response decoding with Serializing and Fetch
//   - OpenTelemetry tracing and metrics on the transport
//   - Optional circuit breaker, local or shared through Redis
//   - Configurable retry pacing and client-side rate limiting
//   - Reachability status and cellular access control
//
// # Quick Start
//
//	client, err := httpclient.New("https://api.example.com",
//	    httpclient.WithServiceName("mobile-app"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	resp, err := client.Get("api/users/1").
//	    ValidateWith(httpclient.ValidateFault).
//	    Validate().
//	    Do(ctx)
//
// Typed decoding:
//
//	user, err := httpclient.Fetch[User](ctx, client, "api/users/1", http.MethodGet, nil, httpclient.Headers{})
//
// # Request Lifecycle
//
// Build registers a Request handle with the client. Resume starts it; each
// attempt builds a fresh *http.Request, runs it through the interceptors,
// sends it and validates the response. A failed attempt is offered to the
// retriers: the first one returning Retry wins. The request is retried at
// most Config.MaxRetries times. Once finished or cancelled the handle
// leaves the registry and no further events are delivered for it.
//
//	req, err := client.Post("api/videos").Parameters(body).Build(ctx)
//	if err != nil {
//	    return err
//	}
//	req.Resume()
//	// ...
//	req.Suspend()
//	req.Resume()
//	resp, err := req.Response(ctx)
//
// # Interceptors and Retriers
//
// Client-wide chains are set with WithInterceptor; per-call chains with
// RequestBuilder.Interceptor. Per-call interceptors and retriers run first.
//
//	chain := httpclient.NewInterceptor(
//	    []httpclient.RequestInterceptor{httpclient.UserAgentInterceptor("app/1.0")},
//	    []httpclient.RequestRetrier{httpclient.TransientRetrier(nil)},
//	)
//
// # Monitors
//
// Monitors receive Events. Each monitor has its own queue, so a slow or
// panicking monitor never delays requests or other monitors.
//
//	client, err := httpclient.New(baseURL, httpclient.WithMonitors(
//	    httpclient.NewLoggingMonitor(httpclient.LoggingMonitorConfig{Logger: logger}),
//	    httpclient.NewPrometheusMonitor(prometheus.DefaultRegisterer, "mobile"),
//	))
//
// # Errors
//
// Every failure is a *NetworkError carrying an ErrorKind:
//
//	if httpclient.IsKind(err, httpclient.KindResponseValidationFailed) {
//	    var fault *httpclient.FaultError
//	    if errors.As(err, &fault) {
//	        fmt.Println(fault.Message)
//	    }
//	}
//
// # Testing
//
// Use MockTransport to stub responses without a server:
//
//	mock := httpclient.NewMockTransport().
//	    StubSequence(nil,
//	        httpclient.MockResponse{StatusCode: 503},
//	        httpclient.MockResponse{StatusCode: 200, Body: `{"id":1}`},
//	    )
//	client, err := httpclient.New("https://api.example.com", httpclient.WithMockTransport(mock))
package httpclient
