package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// State is the lifecycle state of a Request.
//
//	initialized → resumed ⇄ suspended
//	resumed → finished
//	initialized | resumed | suspended → cancelled
type State int

const (
	StateInitialized State = iota
	StateResumed
	StateSuspended
	StateCancelled
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateResumed:
		return "resumed"
	case StateSuspended:
		return "suspended"
	case StateCancelled:
		return "cancelled"
	case StateFinished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateFinished
}

// Attempt is one transport round trip of a Request.
type Attempt struct {
	// Index is the request's retry count when the attempt started.
	Index int

	// Request is the adapted request that was sent.
	Request *http.Request

	// Response is nil when the transport failed.
	Response *http.Response

	// Data is the fully read response body.
	Data []byte

	// Err is the attempt's failure, including validation failures.
	Err error

	Start    time.Time
	Duration time.Duration

	// Trace is set once the round trip has completed.
	Trace *TraceInfo
}

// buildFunc creates a fresh, unadapted request for each attempt, returning
// the encoded body alongside it.
type buildFunc func(ctx context.Context) (*http.Request, []byte, error)

// outcome is the terminal result handed to serializers.
type outcome struct {
	request  *http.Request
	response *http.Response
	data     []byte
	err      error
	trace    *TraceInfo
}

// serializer turns an outcome into a typed value. It runs with the request
// lock held and must not call methods on the Request.
type serializer func(outcome) any

// Request is the handle of one logical request across all of its attempts.
// It stays registered with its Client from creation until it reaches a
// terminal state.
//
// A Request does nothing until Resume is called. Suspend holds back the next
// attempt and the delivery of completion until Resume; an attempt already on
// the wire runs to completion. Cancel aborts the current attempt.
type Request struct {
	id          uuid.UUID
	client      *Client
	interceptor *Interceptor
	monitor     Monitor
	build       buildFunc
	validators  []Validator
	backOff     backoff.BackOff
	created     time.Time

	ctx        context.Context
	cancel     context.CancelFunc
	stopWatch  func() bool
	stopExpiry func() bool
	done       chan struct{}

	mu          sync.Mutex
	state       State
	retryCount  int
	gate        chan struct{}
	urlRequest  *http.Request
	body        []byte
	response    *http.Response
	data        []byte
	err         error
	attempts    []*Attempt
	serializers []serializer
}

func newRequest(parent context.Context, client *Client, interceptor *Interceptor, build buildFunc, validators []Validator) *Request {
	base := context.WithoutCancel(parent)
	var ctx context.Context
	var cancel context.CancelFunc
	if timeout := client.config.httpConfig.ResourceTimeout; timeout > 0 {
		ctx, cancel = context.WithTimeout(base, timeout)
	} else {
		ctx, cancel = context.WithCancel(base)
	}

	r := &Request{
		id:          uuid.New(),
		client:      client,
		interceptor: interceptor,
		build:       build,
		validators:  validators,
		backOff:     client.config.httpConfig.Retry.newBackOff(),
		created:     time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if client.monitor != nil && client.monitor.Len() > 0 {
		r.monitor = client.monitor
	}

	client.config.Metrics.recordHandleStarted(ctx, client.config.baseAttributes())

	// Cancelling the caller's context cancels the request.
	r.stopWatch = context.AfterFunc(parent, func() { r.Cancel() })
	// The resource timeout also covers requests that are never resumed.
	r.stopExpiry = context.AfterFunc(ctx, r.expire)
	return r
}

// ID returns the request's identity within its Client's registry.
func (r *Request) ID() uuid.UUID {
	return r.id
}

// Client returns the client that created the request.
func (r *Request) Client() *Client {
	return r.client
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// RetryCount is the number of retries performed so far.
func (r *Request) RetryCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryCount
}

// Interceptor returns the effective chain, which may be nil.
func (r *Request) Interceptor() *Interceptor {
	return r.interceptor
}

// Monitor returns the monitor receiving this request's events, or nil.
func (r *Request) Monitor() Monitor {
	return r.monitor
}

// URLRequest returns the most recent request before adaptation.
func (r *Request) URLRequest() *http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.urlRequest
}

// LastResponse returns the response of the most recent attempt that got one.
func (r *Request) LastResponse() *http.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response
}

// Data returns the body of LastResponse.
func (r *Request) Data() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Err returns the terminal error. It is nil while the request is running
// and after a successful finish.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Attempts returns copies of every attempt made so far.
func (r *Request) Attempts() []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Attempt, len(r.attempts))
	for i, a := range r.attempts {
		out[i] = *a
	}
	return out
}

// Metrics returns the trace of the last completed attempt.
func (r *Request) Metrics() *TraceInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range slices.Backward(r.attempts) {
		if a.Trace != nil {
			return a.Trace
		}
	}
	return nil
}

// CurlCommand describes the last adapted request, or the unadapted one when
// adaptation has not happened yet.
func (r *Request) CurlCommand() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := r.urlRequest
	if n := len(r.attempts); n > 0 {
		req = r.attempts[n-1].Request
	}
	return generateCurlCommand(req, r.body)
}

// Resume starts the request, or continues a suspended one. It is a no-op on
// a resumed or terminal request.
func (r *Request) Resume() *Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateInitialized:
		r.state = StateResumed
		r.emitLocked(Event{Kind: EventResumed})
		go r.run()
	case StateSuspended:
		r.state = StateResumed
		close(r.gate)
		r.gate = nil
		r.emitLocked(Event{Kind: EventResumed})
	}
	return r
}

// Suspend pauses a resumed request. It has no effect in any other state.
func (r *Request) Suspend() *Request {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateResumed {
		return r
	}
	r.state = StateSuspended
	r.gate = make(chan struct{})
	r.emitLocked(Event{Kind: EventSuspended})
	return r
}

// Cancel aborts the request with KindExplicitlyCancelled. Cancelling a
// terminal request is a no-op.
func (r *Request) Cancel() *Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminateLocked(StateCancelled, newNetworkError(KindExplicitlyCancelled, context.Canceled))
	return r
}

// Done is closed once the request reaches a terminal state.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request is terminal or ctx is done, and returns the
// terminal error.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Response waits for the request and returns its last response. The
// response is returned alongside a validation error so callers can inspect
// the rejected body.
func (r *Request) Response(ctx context.Context) (*Response, error) {
	if err := r.Wait(ctx); err != nil && r.isPending() {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.response == nil {
		return nil, r.err
	}
	return r.responseLocked(), r.err
}

func (r *Request) isPending() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *Request) responseLocked() *Response {
	var trace *TraceInfo
	var req *http.Request
	if n := len(r.attempts); n > 0 {
		trace = r.attempts[n-1].Trace
		req = r.attempts[n-1].Request
	}
	return &Response{
		Response: r.response,
		body:     r.data,
		handle:   r,
		curl:     generateCurlCommand(req, r.body),
		trace:    trace,
	}
}

// addSerializer registers fn to run when the request becomes terminal. On
// a terminal request fn runs immediately.
func (r *Request) addSerializer(fn serializer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.IsTerminal() {
		fn(r.outcomeLocked())
		return
	}
	r.serializers = append(r.serializers, fn)
}

func (r *Request) outcomeLocked() outcome {
	o := outcome{response: r.response, data: r.data, err: r.err}
	if n := len(r.attempts); n > 0 {
		o.request = r.attempts[n-1].Request
		o.trace = r.attempts[n-1].Trace
	}
	return o
}

// run drives attempts until the request is terminal.
func (r *Request) run() {
	for {
		if !r.awaitResumed() {
			return
		}

		err := r.perform()
		if err == nil {
			r.complete(nil)
			return
		}

		delay, ok := r.shouldRetry(err)
		if !ok {
			r.complete(err)
			return
		}

		if !r.sleep(delay) {
			return
		}

		r.mu.Lock()
		if r.state.IsTerminal() {
			r.mu.Unlock()
			return
		}
		r.retryCount++
		count := r.retryCount
		r.emitLocked(Event{Kind: EventRetrying, Err: err})
		r.mu.Unlock()

		r.client.config.Metrics.recordHandleRetry(r.ctx, r.client.config.baseAttributes(), count)
		r.client.logger.Debug().
			Str("request_id", r.id.String()).
			Int("retry", count).
			Dur("delay", delay).
			Err(err).
			Msg("retrying request")
	}
}

// awaitResumed blocks while the request is suspended. It returns false once
// the request is terminal, expiring it first if its context ended.
func (r *Request) awaitResumed() bool {
	for {
		r.mu.Lock()
		if r.state.IsTerminal() {
			r.mu.Unlock()
			return false
		}
		gate := r.gate
		r.mu.Unlock()

		if gate == nil {
			return true
		}

		select {
		case <-gate:
		case <-r.ctx.Done():
			r.expire()
			return false
		}
	}
}

// complete finishes the request once it is resumed.
func (r *Request) complete(err error) {
	for r.awaitResumed() {
		r.mu.Lock()
		if r.state == StateResumed {
			r.terminateLocked(StateFinished, err)
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()
	}
}

// expire cancels a request whose lifecycle context ended.
func (r *Request) expire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.terminateLocked(StateCancelled, newNetworkError(KindSessionTaskFailed, r.ctx.Err()))
}

func (r *Request) sleep(d time.Duration) bool {
	if d <= 0 {
		if r.ctx.Err() != nil {
			r.expire()
			return false
		}
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.ctx.Done():
		r.expire()
		return false
	}
}

// shouldRetry asks the chain whether a failed attempt is retried and how
// long to wait first. The retry ceiling holds regardless of the retriers.
func (r *Request) shouldRetry(err error) (time.Duration, bool) {
	if IsKind(err, KindExplicitlyCancelled) || r.ctx.Err() != nil {
		return 0, false
	}
	if r.interceptor == nil || len(r.interceptor.retriers) == 0 {
		return 0, false
	}
	if r.RetryCount() >= r.client.MaxRetries() {
		r.client.config.Metrics.recordRetryCeiling(r.ctx, r.client.config.baseAttributes())
		return 0, false
	}
	if _, ok := r.client.registry.lookup(r.id); !ok {
		return 0, false
	}

	if r.interceptor.Retry(r.ctx, r, r.client, err) != Retry {
		return 0, false
	}

	delay := r.backOff.NextBackOff()
	if delay == backoff.Stop {
		return 0, false
	}
	return delay, true
}

// perform runs one attempt: build, adapt, send, read, validate.
func (r *Request) perform() error {
	req, body, err := r.build(r.ctx)
	if err != nil {
		nerr := asNetworkError(KindURLRequestValidationFailed, err)
		r.emit(Event{Kind: EventFailedToCreateURLRequest, Err: nerr})
		return nerr
	}

	r.mu.Lock()
	r.urlRequest = req
	r.body = body
	index := r.retryCount
	r.emitLocked(Event{Kind: EventCreatedURLRequest, URLRequest: req})
	r.mu.Unlock()

	adapted, err := r.interceptor.Intercept(r.ctx, req, r.client)
	if err != nil {
		nerr := newNetworkError(KindRequestAdaptationFailed, err)
		r.emit(Event{Kind: EventAdaptationFailed, URLRequest: req, Err: nerr})
		return nerr
	}
	r.emit(Event{Kind: EventAdaptedRequest, URLRequest: req, AdaptedRequest: adapted})

	tracer := newRequestTracer()
	actx := httptrace.WithClientTrace(adapted.Context(), tracer.clientTrace())
	actx = context.WithValue(actx, attemptInfoKey{}, attemptInfo{requestID: r.id.String(), retryCount: index})
	adapted = adapted.WithContext(actx)

	attempt := &Attempt{Index: index, Request: adapted, Start: time.Now()}
	r.mu.Lock()
	r.attempts = append(r.attempts, attempt)
	r.emitLocked(Event{Kind: EventTaskCreated, AdaptedRequest: adapted, Attempt: snapshot(attempt)})
	r.mu.Unlock()

	var resp *http.Response
	var data []byte
	if err = r.client.checkPath(); err == nil {
		resp, data, err = r.send(adapted)
	}

	r.mu.Lock()
	if r.state.IsTerminal() {
		// Cancelled while on the wire; the terminal result is already set.
		terminal := r.err
		r.mu.Unlock()
		return terminal
	}
	attempt.Duration = time.Since(attempt.Start)
	attempt.Trace = tracer.toTraceInfo()
	r.emitLocked(Event{Kind: EventMetricsCollected, Attempt: snapshot(attempt)})

	var nerr *NetworkError
	if err != nil {
		nerr = classifyTaskError(err, r.state == StateCancelled)
		attempt.Err = nerr
	}
	attempt.Response = resp
	attempt.Data = data
	if resp != nil {
		r.response = resp
		r.data = data
	}
	r.emitLocked(Event{Kind: EventTaskCompleted, Attempt: snapshot(attempt), Response: resp, Data: data, Err: errOrNil(nerr)})
	r.mu.Unlock()

	if nerr != nil {
		r.client.logger.Debug().
			Str("request_id", r.id.String()).
			Str("kind", nerr.Kind.String()).
			Err(nerr.Err).
			Msg("attempt failed")
		return nerr
	}

	for _, validate := range r.validators {
		var verr error
		if err := validate(adapted, resp, data); err != nil {
			verr = newNetworkError(KindResponseValidationFailed, err)
		}

		r.mu.Lock()
		attempt.Err = verr
		r.emitLocked(Event{Kind: EventValidated, Response: resp, Data: data, Err: verr})
		r.mu.Unlock()

		if verr != nil {
			return verr
		}
	}
	return nil
}

// send performs the round trip and reads the whole body, leaving the
// response body empty.
func (r *Request) send(req *http.Request) (*http.Response, []byte, error) {
	resp, err := r.client.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	resp.Body = http.NoBody
	if err != nil {
		return resp, data, err
	}
	return resp, data, nil
}

// terminateLocked moves the request into a terminal state exactly once:
// serializers run, the terminal event is dispatched, the handle leaves the
// registry and every waiter is released.
func (r *Request) terminateLocked(state State, err error) {
	if r.state.IsTerminal() {
		return
	}

	r.err = err
	for _, fn := range r.serializers {
		value := fn(r.outcomeLocked())
		r.emitLocked(Event{Kind: EventParsedResponse, Value: value, Err: err})
	}
	r.serializers = nil

	kind := EventFinished
	if state == StateCancelled {
		kind = EventCancelled
	}
	r.state = state
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
	r.dispatch(Event{Kind: kind, Response: r.response, Err: err})

	outcome := handleOutcomeSuccess
	switch {
	case state == StateCancelled:
		outcome = handleOutcomeCancelled
	case err != nil:
		outcome = handleOutcomeFailure
	}
	r.client.config.Metrics.recordHandleCompleted(r.ctx, r.client.config.baseAttributes(),
		outcome, time.Since(r.created), len(r.attempts))

	r.client.registry.remove(r.id)
	close(r.done)
	if r.stopWatch != nil {
		r.stopWatch()
	}
	if r.stopExpiry != nil {
		r.stopExpiry()
	}
	r.cancel()

	r.client.logger.Debug().
		Str("request_id", r.id.String()).
		Str("state", state.String()).
		Int("retries", r.retryCount).
		Err(err).
		Msg("request completed")
}

func (r *Request) emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emitLocked(e)
}

// emitLocked drops events once the request is terminal.
func (r *Request) emitLocked(e Event) {
	if r.state.IsTerminal() {
		return
	}
	r.dispatch(e)
}

func (r *Request) dispatch(e Event) {
	if r.monitor == nil {
		return
	}
	e.Request = r
	e.Time = time.Now()
	r.monitor.OnEvent(e)
}

func snapshot(a *Attempt) *Attempt {
	c := *a
	return &c
}

// errOrNil avoids wrapping a nil *NetworkError in a non-nil error.
func errOrNil(err *NetworkError) error {
	if err == nil {
		return nil
	}
	return err
}

// attemptInfo travels with each attempt's context so the transport can label
// spans with the owning request.
type attemptInfo struct {
	requestID  string
	retryCount int
}

type attemptInfoKey struct{}

func attemptInfoFromContext(ctx context.Context) (attemptInfo, bool) {
	info, ok := ctx.Value(attemptInfoKey{}).(attemptInfo)
	return info, ok
}
