// Package client fetches regal JSON descriptors over HTTP and renders them
// into document trees.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"regal/pkg/logging"
)

// Scheduler runs callbacks; page.Loop satisfies it
type Scheduler interface {
	Post(fn func()) error
}

// StatusError reports a response whose status was not 200
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Error loading url [%s]: %d", e.URL, e.StatusCode)
}

// DecodeError reports a 200 response whose body was not the expected JSON
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response from [%s]: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Response is the raw outcome handed to error callbacks. StatusCode is 0 when
// the request never got a response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
}

// Fetcher issues GET requests for JSON descriptors
type Fetcher struct {
	client    *http.Client
	logger    *zap.Logger
	scheduler Scheduler
}

// Option configures a Fetcher
type Option func(*Fetcher)

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithLogger sets the logger receiving default error diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logging.OrNop(l)
	}
}

// WithScheduler makes callbacks run on s instead of the request goroutine
func WithScheduler(s Scheduler) Option {
	return func(f *Fetcher) {
		f.scheduler = s
	}
}

// NewFetcher creates a Fetcher
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Request tracks one asynchronous fetch
type Request struct {
	done chan struct{}
	err  error
}

func newRequest() *Request {
	return &Request{done: make(chan struct{})}
}

func (r *Request) finish(err error) {
	r.err = err
	close(r.done)
}

// Done is closed once the callback for the request has returned
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err returns the failure of the request, if any. Only valid after Done.
func (r *Request) Err() error {
	return r.err
}

// Wait blocks until the request is done or ctx ends
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchJSON issues one GET to url. A 200 response is decoded into T and passed
// to onSuccess. Any other outcome goes to onError, or is logged when onError is nil.
// Exactly one of the two is called, once.
func FetchJSON[T any](ctx context.Context, f *Fetcher, url string, onSuccess func(T), onError func(*Response)) *Request {
	req := newRequest()
	go func() {
		value, resp := fetch[T](ctx, f, url)

		var callback func()
		if resp.Err == nil {
			callback = func() { onSuccess(value) }
		} else if onError != nil {
			callback = func() { onError(resp) }
		} else {
			callback = func() { f.logFailure(resp) }
		}
		f.dispatch(req, callback, resp.Err)
	}()
	return req
}

// Get fetches url and decodes the JSON body into T. Failures are returned as
// *StatusError, *DecodeError or the transport error.
func Get[T any](ctx context.Context, f *Fetcher, url string) (T, error) {
	value, resp := fetch[T](ctx, f, url)
	return value, resp.Err
}

func (f *Fetcher) dispatch(req *Request, callback func(), err error) {
	if f.scheduler == nil {
		callback()
		req.finish(err)
		return
	}
	postErr := f.scheduler.Post(func() {
		callback()
		req.finish(err)
	})
	if postErr != nil {
		f.logger.Warn("Dropping fetch callback", zap.Error(postErr))
		req.finish(errors.Join(err, postErr))
	}
}

func (f *Fetcher) logFailure(resp *Response) {
	var decodeErr *DecodeError
	if errors.As(resp.Err, &decodeErr) {
		f.logger.Error(decodeErr.Error(), zap.String("url", resp.URL), zap.Error(decodeErr.Err))
		return
	}
	f.logger.Error(fmt.Sprintf("Error loading url [%s]: %d", resp.URL, resp.StatusCode),
		zap.String("url", resp.URL),
		zap.Int("status", resp.StatusCode),
		zap.Error(resp.Err))
}

func fetch[T any](ctx context.Context, f *Fetcher, url string) (T, *Response) {
	var value T
	resp := &Response{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		resp.Err = fmt.Errorf("failed to create request: %w", err)
		return value, resp
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := f.client.Do(req)
	if err != nil {
		resp.Err = fmt.Errorf("failed to send request: %w", err)
		return value, resp
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode
	resp.Header = httpResp.Header
	body, err := io.ReadAll(httpResp.Body)
	resp.Body = body
	if err != nil {
		resp.Err = fmt.Errorf("failed to read response: %w", err)
		return value, resp
	}

	if httpResp.StatusCode != http.StatusOK {
		resp.Err = &StatusError{URL: url, StatusCode: httpResp.StatusCode}
		return value, resp
	}
	if err := json.Unmarshal(body, &value); err != nil {
		resp.Err = &DecodeError{URL: url, Err: err}
	}
	return value, resp
}
