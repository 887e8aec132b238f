// Package httputil holds the JSON response helpers shared by the API
// handlers and the client-side plumbing used to call a trial server.
package httputil

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// HTTPClient sends requests. *http.Client satisfies it.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Call is one request seen by a Recorder.
type Call struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Reply is a canned answer. A non-nil Err is returned as a transport error.
type Reply struct {
	Status int
	Body   string
	Err    error
}

// Recorder is an HTTPClient for tests. It keeps every request and answers
// with the queued replies in order, then with empty 200s.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	replies []Reply
}

func NewRecorder(replies ...Reply) *Recorder {
	return &Recorder{replies: replies}
}

func (r *Recorder) Do(req *http.Request) (*http.Response, error) {
	call := Call{Method: req.Method, URL: req.URL.String(), Header: req.Header.Clone()}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		call.Body = body
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	reply := Reply{Status: http.StatusOK}
	if len(r.replies) > 0 {
		reply, r.replies = r.replies[0], r.replies[1:]
	}
	if reply.Err != nil {
		return nil, reply.Err
	}
	return &http.Response{
		StatusCode: reply.Status,
		Status:     http.StatusText(reply.Status),
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewBufferString(reply.Body)),
		Request:    req,
	}, nil
}

// Calls returns the requests seen so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}
