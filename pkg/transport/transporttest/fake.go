// Package transporttest provides a scripted Transport for tests.
package transporttest

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/systmms/vaultlease/internal/errors"
	"github.com/systmms/vaultlease/pkg/transport"
)

// Result is one scripted outcome.
type Result struct {
	Response *transport.Response
	Err      error
}

// OK is a 200 response carrying data.
func OK(data map[string]interface{}) Result {
	return Result{Response: &transport.Response{StatusCode: http.StatusOK, Data: data}}
}

// Status is a non-2xx response as the Vault transport reports it.
func Status(method, path string, code int, messages ...string) Result {
	return Result{Err: &errors.APIError{
		Method:     method,
		Path:       "/v1/" + strings.TrimPrefix(path, "/"),
		StatusCode: code,
		Messages:   messages,
	}}
}

// Fail returns err from the request.
func Fail(err error) Result {
	return Result{Err: err}
}

// Fake replays scripted results per "METHOD path". Results for a route are
// consumed in order and the last one repeats. Unscripted routes answer 404.
type Fake struct {
	mu       sync.Mutex
	routes   map[string][]Result
	handlers map[string]func(*transport.Request) Result
	requests []transport.Request
	counts   map[string]int
	tokens   transport.TokenSource
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		routes:   make(map[string][]Result),
		handlers: make(map[string]func(*transport.Request) Result),
		counts:   make(map[string]int),
	}
}

func routeKey(method, path string) string {
	return method + " " + strings.TrimPrefix(path, "/")
}

// On appends results for method and path.
func (f *Fake) On(method, path string, results ...Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := routeKey(method, path)
	f.routes[key] = append(f.routes[key], results...)
	return f
}

// Handle answers method and path with fn, replacing scripted results.
func (f *Fake) Handle(method, path string, fn func(*transport.Request) Result) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.handlers[routeKey(method, path)] = fn
	return f
}

// SetTokenSource mirrors the Vault transport: requests without their own
// token are recorded with the token tokens returns.
func (f *Fake) SetTokenSource(tokens transport.TokenSource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = tokens
}

// Request implements transport.Transport.
func (f *Fake) Request(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	tokens := f.tokens
	f.mu.Unlock()

	sent := *req
	if !sent.Anonymous && sent.Token == "" && tokens != nil {
		token, err := tokens()
		if err != nil {
			return nil, err
		}
		sent.Token = token
	}
	req = &sent

	key := routeKey(req.Method, req.Path)

	f.mu.Lock()
	f.requests = append(f.requests, *req)
	f.counts[key]++
	handler := f.handlers[key]
	var result Result
	if handler == nil {
		queue := f.routes[key]
		switch {
		case len(queue) == 0:
			result = Status(req.Method, req.Path, http.StatusNotFound)
		case len(queue) == 1:
			result = queue[0]
		default:
			result = queue[0]
			f.routes[key] = queue[1:]
		}
	}
	f.mu.Unlock()

	if handler != nil {
		result = handler(req)
	}
	return result.Response, result.Err
}

// Calls returns how many requests hit method and path.
func (f *Fake) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[routeKey(method, path)]
}

// Requests returns a copy of every request received so far.
func (f *Fake) Requests() []transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]transport.Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Total returns the number of requests received.
func (f *Fake) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}
