package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
)

// Simulation holds a set of request/response pairs for replay.
type Simulation struct {
	Pairs []Pair `json:"pairs"`
}

// Pair is a single recorded request/response exchange.
type Pair struct {
	Description string   `json:"description,omitempty"`
	Request     Request  `json:"request"`
	Response    Response `json:"response"`
}

// Request describes the expected HTTP request to match.
type Request struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	// Form lists body fields that must be present with these exact values.
	Form map[string]string `json:"form,omitempty"`
}

// Response describes the canned HTTP response to return.
type Response struct {
	Status int `json:"status"`
	// Reason overrides the reason phrase of the status line, the way the
	// server reports validation failures ("400 Empty vrt.").
	Reason  string            `json:"reason,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body"`
}

// BodyBytes returns the response body as raw bytes.
// If body is a JSON string (descriptor text), it unquotes it.
// If body is a JSON object/array, it returns the raw JSON.
func (r Response) BodyBytes() []byte {
	if len(r.Body) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(r.Body, &s); err == nil {
		return []byte(s)
	}
	return r.Body
}

// TextResponse builds a Response with a plain-text body.
func TextResponse(status int, body string) Response {
	encoded, _ := json.Marshal(body)
	return Response{Status: status, Body: encoded}
}

// LoadSimulation reads a simulation file from disk.
func LoadSimulation(path string) (*Simulation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading simulation %s: %w", path, err)
	}
	var sim Simulation
	if err := json.Unmarshal(data, &sim); err != nil {
		return nil, fmt.Errorf("parsing simulation %s: %w", path, err)
	}
	return &sim, nil
}

// matches checks whether an HTTP request matches a simulation request.
func matches(method, path string, form url.Values, sim Request) bool {
	if method != sim.Method {
		return false
	}
	if path != sim.Path {
		return false
	}
	for key, expected := range sim.Form {
		if got := form.Get(key); got != expected {
			return false
		}
	}
	return true
}

// SimulationServer wraps an httptest.Server that replays recorded simulations.
type SimulationServer struct {
	Server *httptest.Server

	mu       sync.Mutex
	sim      *Simulation
	requests []RecordedRequest
}

// RecordedRequest is a request received by a SimulationServer.
type RecordedRequest struct {
	Method  string
	Path    string
	Form    url.Values
	Header  http.Header
	Cookies map[string]string
}

// NewSimulationServer creates and starts a test server from simulation data.
func NewSimulationServer(sim *Simulation) *SimulationServer {
	ss := &SimulationServer{sim: sim}
	ss.Server = httptest.NewServer(http.HandlerFunc(ss.handler))
	return ss
}

func (ss *SimulationServer) handler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	ss.mu.Lock()
	ss.requests = append(ss.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Form:    r.PostForm,
		Header:  r.Header.Clone(),
		Cookies: cookies,
	})
	ss.mu.Unlock()

	for _, pair := range ss.sim.Pairs {
		if !matches(r.Method, r.URL.Path, r.PostForm, pair.Request) {
			continue
		}
		writeResponse(w, pair.Response)
		return
	}

	// No match: answer 404 with what was received
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprintf(w, "no matching simulation for %s %s", r.Method, r.URL.String())
}

func writeResponse(w http.ResponseWriter, resp Response) {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	body := resp.BodyBytes()

	if resp.Reason != "" {
		if writeRawResponse(w, status, resp.Reason, resp.Headers, body) {
			return
		}
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(status)
	if _, wErr := w.Write(body); wErr != nil {
		return // client disconnected
	}
}

// writeRawResponse writes a response with a custom reason phrase, which
// net/http cannot produce through ResponseWriter.
func writeRawResponse(w http.ResponseWriter, status int, reason string, headers map[string]string, body []byte) bool {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return false
	}
	conn, buf, err := hj.Hijack()
	if err != nil {
		return false
	}
	defer conn.Close()

	fmt.Fprintf(buf, "HTTP/1.1 %03d %s\r\n", status, reason)
	contentType := "text/plain; charset=utf-8"
	for k, v := range headers {
		if strings.EqualFold(k, "Content-Type") {
			contentType = v
			continue
		}
		fmt.Fprintf(buf, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(buf, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(buf, "Content-Length: %d\r\n", len(body))
	fmt.Fprintf(buf, "Connection: close\r\n\r\n")
	buf.Write(body)
	buf.Flush()
	return true
}

// URL returns the test server's URL.
func (ss *SimulationServer) URL() string {
	return ss.Server.URL
}

// Close shuts down the test server.
func (ss *SimulationServer) Close() {
	ss.Server.Close()
}

// Requests returns all recorded requests.
func (ss *SimulationServer) Requests() []RecordedRequest {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	copied := make([]RecordedRequest, len(ss.requests))
	copy(copied, ss.requests)
	return copied
}
