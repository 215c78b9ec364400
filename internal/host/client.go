// Package host talks to the indexing host: RPC calls over HTTP, the pushed
// event stream over SSE, and the host's path to asset URI rule.
package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"snaphound/internal/logging"
	"snaphound/internal/metrics"
)

const (
	UserAgent       = "snaphound/1.0"
	SessionHeader   = "X-Session-ID"
	invokeEndpoint  = "/invoke/"
	eventsEndpoint  = "/events"
	assetEndpoint   = "/asset"
	maxErrorBodyLen = 4096
)

// Host call names
const (
	CallInitializeEnvironment = "initialize_environment"
	CallListFiles             = "list_files"
	CallSearch                = "search_indexed_data"
	CallSearchCancel          = "search_cancel"
	CallFetchConfig           = "fetch_config"
	CallSaveConfig            = "save_config"
	CallSelectFolder          = "select_folder"
	CallResetAll              = "reset_all"
	CallRelaunch              = "relaunch"
)

// Options configures a Client
type Options struct {
	BaseURL         string
	SessionID       string // generated when empty
	Timeout         time.Duration
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Observer        metrics.Observer
	OnConnect       func() // called every time the event stream (re)connects
}

// Client is a connection to one host process
type Client struct {
	base       *url.URL
	session    string
	httpClient *http.Client
	opts       Options
	observer   metrics.Observer
}

type uaRoundTripper struct {
	rt      http.RoundTripper
	session string
}

func (t *uaRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(SessionHeader, t.session)
	return t.rt.RoundTrip(req)
}

// NewClient validates the host URL and prepares a client
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("host URL is required")
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid host URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid host URL %q: scheme must be http or https", opts.BaseURL)
	}

	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 2 * time.Second
	}

	return &Client{
		base:    base,
		session: opts.SessionID,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: &uaRoundTripper{rt: http.DefaultTransport, session: opts.SessionID},
		},
		opts:     opts,
		observer: metrics.OrNop(opts.Observer),
	}, nil
}

// SessionID returns the id this client uses for its event stream
func (c *Client) SessionID() string {
	return c.session
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

// AssetURI converts a host filesystem path into a URI the host serves
func (c *Client) AssetURI(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + assetEndpoint
	u.RawQuery = url.Values{"path": []string{path}}.Encode()
	return u.String()
}

// Probe checks that a resolved asset URI can be loaded
func (c *Client) Probe(ctx context.Context, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", uri, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("failed to load %s: %s", uri, res.Status)
	}
	return nil
}

// Invoke calls a host command with args encoded as JSON and decodes the
// result into out when out is non-nil. Transient failures are retried.
func (c *Client) Invoke(ctx context.Context, call string, args any, out any) error {
	if args == nil {
		args = struct{}{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("failed to encode %s args: %w", call, err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialInterval
	policy.MaxInterval = c.opts.MaxInterval
	policy.MaxElapsedTime = 0
	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.MaxAttempts-1)), ctx)

	start := time.Now()
	var result []byte
	operation := func() error {
		data, err := c.post(ctx, call, body)
		if err != nil {
			if IsTransient(err) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		result = data
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.observer.ObserveRPCRetry(call)
		logging.Warn("Host: %s failed, retrying in %s: %v", call, wait, err)
	}

	err = backoff.RetryNotify(operation, retry, notify)
	c.observer.ObserveRPC(call, err, time.Since(start))
	if err != nil {
		return err
	}

	if out == nil || len(bytes.TrimSpace(result)) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return &RPCError{Call: call, Message: "invalid response body", Err: err}
	}
	return nil
}

func (c *Client) post(ctx context.Context, call string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(invokeEndpoint+call), bytes.NewReader(body))
	if err != nil {
		return nil, &RPCError{Call: call, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RPCError{Call: call, Message: err.Error(), Transient: true, Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBodyLen))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(res.StatusCode)
		}
		return nil, &RPCError{
			Call:      call,
			Status:    res.StatusCode,
			Message:   text,
			Transient: transientStatus(res.StatusCode),
		}
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &RPCError{Call: call, Message: "failed to read response", Transient: true, Err: err}
	}
	return data, nil
}

// InitializeEnvironment asks the host to prepare its index
func (c *Client) InitializeEnvironment(ctx context.Context) error {
	return c.Invoke(ctx, CallInitializeEnvironment, nil, nil)
}

// ListFiles requests the library listing for epoch
func (c *Client) ListFiles(ctx context.Context, epoch uint64) error {
	return c.Invoke(ctx, CallListFiles, map[string]any{"epoch": epoch}, nil)
}

// Search requests results for query tagged with epoch
func (c *Client) Search(ctx context.Context, query string, epoch uint64) error {
	return c.Invoke(ctx, CallSearch, map[string]any{"searchQuery": query, "epoch": epoch}, nil)
}

// CancelSearch asks the host to stop a running search
func (c *Client) CancelSearch(ctx context.Context) error {
	return c.Invoke(ctx, CallSearchCancel, nil, nil)
}

type configResult struct {
	PriorityPaths []string `json:"priority_paths"`
	PriorityPath  []string `json:"priority_path"`
}

// FetchConfig returns the persisted search paths. Hosts have used both
// "priority_paths" and "priority_path" for the same list.
func (c *Client) FetchConfig(ctx context.Context) ([]string, error) {
	var res configResult
	if err := c.Invoke(ctx, CallFetchConfig, nil, &res); err != nil {
		return nil, err
	}
	if res.PriorityPaths != nil {
		return res.PriorityPaths, nil
	}
	if res.PriorityPath != nil {
		return res.PriorityPath, nil
	}
	return []string{}, nil
}

// SaveConfig persists the search paths in order
func (c *Client) SaveConfig(ctx context.Context, paths []string) error {
	if paths == nil {
		paths = []string{}
	}
	return c.Invoke(ctx, CallSaveConfig, map[string]any{"priorityPath": paths}, nil)
}

// SelectFolder opens the host's folder picker; an empty result means cancelled
func (c *Client) SelectFolder(ctx context.Context) (string, error) {
	var folder string
	if err := c.Invoke(ctx, CallSelectFolder, nil, &folder); err != nil {
		return "", err
	}
	return folder, nil
}

// ResetAll asks the host to drop its index and configuration
func (c *Client) ResetAll(ctx context.Context) error {
	return c.Invoke(ctx, CallResetAll, nil, nil)
}

// Relaunch asks the host to restart the application
func (c *Client) Relaunch(ctx context.Context) error {
	return c.Invoke(ctx, CallRelaunch, nil, nil)
}
