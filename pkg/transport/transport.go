// Package transport sends requests to the secret service.
//
// The Transport interface is all the rest of the module knows about the
// wire: a method, a path relative to the API root, an optional JSON body
// and the decoded JSON response. Non-2xx responses are returned as
// *errors.APIError so callers can classify them by status.
package transport

import (
	"context"
	"encoding/json"
	"strconv"
)

// Request is one call to the secret service.
type Request struct {
	Method string
	// Path is relative to the API root, e.g. "auth/userpass/login/app" or
	// "/secret/data/app". A leading slash is optional.
	Path string
	Body map[string]interface{}
	// Token overrides the token supplied by the transport's TokenSource.
	Token string
	// Anonymous requests carry no token at all. Login calls use it.
	Anonymous bool
}

// Response is a decoded 2xx response.
type Response struct {
	StatusCode int
	Data       map[string]interface{}
}

// Transport performs requests against the secret service.
type Transport interface {
	Request(ctx context.Context, req *Request) (*Response, error)
}

// TokenSource returns the token attached to authenticated requests. An
// empty token sends the request without one.
type TokenSource func() (string, error)

// Map returns the object stored under key, or nil.
func (r *Response) Map(key string) map[string]interface{} {
	if r == nil || r.Data == nil {
		return nil
	}
	m, _ := r.Data[key].(map[string]interface{})
	return m
}

// Int converts a decoded JSON number to an int.
func Int(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
