//go:build e2e && unix

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/r3labs/sse/v2"
)

// media is one descriptor served by the fake host
type media struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// FakeHost is an in-process indexing host speaking the invoke/event protocol
type FakeHost struct {
	URL string

	t      *testing.T
	events *sse.Server
	http   *httptest.Server

	mu    sync.Mutex
	calls []string
	paths []string
	media []media
}

// NewFakeHost starts a host serving items
func NewFakeHost(t *testing.T, items ...media) *FakeHost {
	t.Helper()
	fh := &FakeHost{t: t, media: items, paths: []string{}}

	fh.events = sse.New()
	fh.events.AutoStream = true
	fh.events.AutoReplay = false

	mux := http.NewServeMux()
	mux.HandleFunc("/events", fh.events.ServeHTTP)
	mux.HandleFunc("/invoke/", fh.handleInvoke)
	mux.HandleFunc("/asset", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	fh.http = httptest.NewServer(mux)
	fh.URL = fh.http.URL
	t.Cleanup(fh.Close)
	return fh
}

// Close stops the event server and the listener
func (fh *FakeHost) Close() {
	fh.events.Close()
	fh.http.Close()
}

// Calls returns the invoked command names in order
func (fh *FakeHost) Calls() []string {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return append([]string(nil), fh.calls...)
}

// Called reports whether call was invoked at least once
func (fh *FakeHost) Called(call string) bool {
	for _, c := range fh.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

// Paths returns the last saved search paths
func (fh *FakeHost) Paths() []string {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	return append([]string(nil), fh.paths...)
}

func (fh *FakeHost) handleInvoke(w http.ResponseWriter, r *http.Request) {
	call := strings.TrimPrefix(r.URL.Path, "/invoke/")
	session := r.Header.Get("X-Session-ID")

	var args map[string]any
	_ = json.NewDecoder(r.Body).Decode(&args)

	fh.mu.Lock()
	fh.calls = append(fh.calls, call)
	fh.mu.Unlock()

	var result any
	switch call {
	case "initialize_environment":
		fh.publish(session, "status_update", nil, "Index ready")
		fh.publish(session, "can_fetch_list", nil, "ready")
	case "list_files":
		epoch := args["epoch"]
		fh.publishBatch(session, "file_path", epoch, fh.matching(""))
		fh.publish(session, "file_path_end", epoch, "done")
	case "search_indexed_data":
		query, _ := args["searchQuery"].(string)
		fh.publishBatch(session, "searched_result", args["epoch"], fh.matching(query))
	case "fetch_config":
		fh.mu.Lock()
		result = map[string]any{"priority_paths": fh.paths}
		fh.mu.Unlock()
	case "save_config":
		var paths []string
		if raw, ok := args["priorityPath"].([]any); ok {
			for _, p := range raw {
				if s, ok := p.(string); ok {
					paths = append(paths, s)
				}
			}
		}
		fh.mu.Lock()
		fh.paths = paths
		fh.mu.Unlock()
	case "select_folder":
		result = ""
	case "search_cancel", "reset_all", "relaunch":
	default:
		http.Error(w, "unknown command "+call, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (fh *FakeHost) matching(query string) []media {
	fh.mu.Lock()
	defer fh.mu.Unlock()
	var out []media
	for _, m := range fh.media {
		if strings.Contains(strings.ToLower(m.Path), strings.ToLower(query)) {
			out = append(out, m)
		}
	}
	return out
}

// publishBatch sends items double encoded, the way real hosts ship batches
func (fh *FakeHost) publishBatch(session, name string, epoch any, items []media) {
	if len(items) == 0 {
		return
	}
	inner, err := json.Marshal(items)
	if err != nil {
		fh.t.Errorf("encode batch: %v", err)
		return
	}
	fh.publish(session, name, epoch, string(inner))
}

// publish wraps payload in an envelope. Data is never empty: an empty data
// frame ends the stream.
func (fh *FakeHost) publish(session, name string, epoch any, payload any) {
	env := map[string]any{"payload": payload}
	if epoch != nil {
		env["epoch"] = epoch
	}
	data, err := json.Marshal(env)
	if err != nil {
		fh.t.Errorf("encode %s: %v", name, err)
		return
	}
	fh.events.Publish(session, &sse.Event{Event: []byte(name), Data: data})
}
