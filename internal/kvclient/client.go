package kvclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// httpClient is the shared client used for all requests, configured with a
// bounded timeout so a wedged kvstored instance fails fast instead of
// hanging callers indefinitely.
var httpClient = &http.Client{Timeout: 5 * time.Second}

// Client talks to a single cmd/kvstored instance over HTTP.
//
// Thread-safety:
//   - Safe for concurrent use by multiple goroutines; Client holds no
//     mutable state beyond the immutable BaseURL.
type Client struct {
	BaseURL string
}

// New returns a Client targeting baseURL.
//
// Parameters:
//   - baseURL: the target kvstored instance, with no trailing slash
//     (e.g. "http://localhost:8090").
//
// Returns:
//   - *Client: ready to use immediately; New performs no network I/O.
//
// Example:
//
//	client := kvclient.New("http://localhost:8090")
//	resp, err := client.Get(ctx, "users", "alice")
func New(baseURL string) *Client {
	return &Client{BaseURL: baseURL}
}

func (c *Client) keyURL(namespace, key, suffix string) string {
	u := fmt.Sprintf("%s/kv/%s/%s", c.BaseURL, url.PathEscape(namespace), url.PathEscape(key))
	if suffix != "" {
		u += "/" + suffix
	}
	return u
}

// Set stores req.Value at (namespace, key).
//
// Parameters:
//   - ctx: bounds the HTTP round trip.
//   - namespace, key: identify the target entry; both are path-escaped.
//   - req: the value and optional expiration/check/return-previous
//     modifiers to apply.
//
// Returns:
//   - Response describing the result (and the previous value, if
//     req.ReturnPrevious was set).
//   - error for transport failures or a non-2xx status from kvstored.
//
// Thread-safety:
//   - Safe for concurrent calls.
func (c *Client) Set(ctx context.Context, namespace, key string, req SetRequest) (Response, error) {
	var out Response
	err := doJSON(ctx, http.MethodPut, c.keyURL(namespace, key, ""), req, &out)
	return out, err
}

// Get reads the current value at (namespace, key).
//
// Parameters:
//   - ctx: bounds the HTTP round trip.
//   - namespace, key: identify the target entry.
//
// Returns:
//   - Response with a nil Value if the key is absent, the stored Value
//     otherwise.
//   - error for transport failures or a non-2xx status.
//
// Thread-safety:
//   - Safe for concurrent calls.
func (c *Client) Get(ctx context.Context, namespace, key string) (Response, error) {
	var out Response
	err := doJSON(ctx, http.MethodGet, c.keyURL(namespace, key, ""), nil, &out)
	return out, err
}

// Delete removes (namespace, key).
//
// Parameters:
//   - ctx: bounds the HTTP round trip.
//   - namespace, key: identify the target entry.
//
// Returns:
//   - Response describing the result; deleting an absent key is not an
//     error.
//   - error for transport failures or a non-2xx status.
//
// Thread-safety:
//   - Safe for concurrent calls.
func (c *Client) Delete(ctx context.Context, namespace, key string) (Response, error) {
	var out Response
	err := doJSON(ctx, http.MethodDelete, c.keyURL(namespace, key, ""), nil, &out)
	return out, err
}

// Increment adds req.Amount to the current numeric value at (namespace, key).
//
// Parameters:
//   - ctx: bounds the HTTP round trip.
//   - namespace, key: identify the target entry.
//   - req: the amount to add and whether to saturate instead of wrap on
//     overflow.
//
// Returns:
//   - Response with the new value.
//   - error for transport failures, a non-2xx status, or a type mismatch
//     if the stored value is not numeric.
//
// Thread-safety:
//   - Safe for concurrent calls.
func (c *Client) Increment(ctx context.Context, namespace, key string, req IncrDecrRequest) (Response, error) {
	var out Response
	err := doJSON(ctx, http.MethodPost, c.keyURL(namespace, key, "incr"), req, &out)
	return out, err
}

// Decrement subtracts req.Amount from the current numeric value at
// (namespace, key).
//
// Parameters:
//   - ctx: bounds the HTTP round trip.
//   - namespace, key: identify the target entry.
//   - req: the amount to subtract and whether to saturate instead of
//     wrap on underflow.
//
// Returns:
//   - Response with the new value.
//   - error for transport failures, a non-2xx status, or a type mismatch
//     if the stored value is not numeric.
//
// Thread-safety:
//   - Safe for concurrent calls.
func (c *Client) Decrement(ctx context.Context, namespace, key string, req IncrDecrRequest) (Response, error) {
	var out Response
	err := doJSON(ctx, http.MethodPost, c.keyURL(namespace, key, "decr"), req, &out)
	return out, err
}

// Healthy reports whether the target instance answers /healthz with 2xx.
//
// Parameters:
//   - ctx: bounds the HTTP round trip.
//
// Returns:
//   - nil if kvstored answered /healthz with a 2xx status.
//   - error for transport failures or a non-2xx status.
//
// Thread-safety:
//   - Safe for concurrent calls.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("kvclient: healthz: http %d", resp.StatusCode)
	}
	return nil
}

// doJSON sends a JSON-encoded request and decodes a JSON response into out.
// A nil body sends no request payload (used for GET/DELETE).
func doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("kvclient: %s %s: http %d", method, url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
