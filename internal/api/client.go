package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/lifedraft/vrt-cli/internal/inserter"
)

// VRTFilePath is the server endpoint processing descriptor actions.
const VRTFilePath = "/vrtfile"

// RequestIDHeader carries a per-request id that also appears in debug logs.
const RequestIDHeader = "X-Request-ID"

// DefaultSessionCookie is the cookie carrying the server session.
const DefaultSessionCookie = "sessionid"

// maxDetail bounds APIError.Detail in runes.
const maxDetail = 200

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// APIError represents a non-success response from the server.
type APIError struct {
	StatusCode int
	// Status is the reason phrase of the status line, e.g. "Empty vrt.".
	Status string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Reason())
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// Reason describes the failure: the reason phrase, else the body, else the
// standard status text.
func (e *APIError) Reason() string {
	if e.Status != "" {
		return e.Status
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		return body
	}
	return http.StatusText(e.StatusCode)
}

// Detail is the first line of the response body, shortened. Some server
// errors only carry their description there.
func (e *APIError) Detail() string {
	line, _, _ := strings.Cut(strings.TrimSpace(e.Body), "\n")
	line = strings.TrimSpace(line)
	if r := []rune(line); len(r) > maxDetail {
		line = string(r[:maxDetail]) + "..."
	}
	return line
}

// Options configures a Client.
type Options struct {
	// Session is the value of the session cookie sent with every request.
	Session string
	// SessionCookie names the session cookie. Defaults to DefaultSessionCookie.
	SessionCookie string
	Timeout       time.Duration
	Logger        *zap.Logger
}

// Client talks to the table-publishing server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewClient creates a client for the server at baseURL. Requests are sent
// exactly once: retries are disabled.
func NewClient(baseURL string, opts Options) (*Client, error) {
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	if opts.Session != "" {
		name := opts.SessionCookie
		if name == "" {
			name = DefaultSessionCookie
		}
		jar.SetCookies(u, []*http.Cookie{{Name: name, Value: opts.Session, Path: "/"}})
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.Logger = nil
	// Hand non-success responses back untouched so the status reaches the caller.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	// An expired session is answered with a redirect to the login page;
	// following it would hand back the login form as descriptor text.
	rc.HTTPClient.CheckRedirect = noRedirect

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := rc.StandardClient()
	hc.Jar = jar
	hc.Timeout = timeout
	hc.CheckRedirect = noRedirect

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		BaseURL:    baseURL,
		HTTPClient: hc,
		Logger:     logger,
	}, nil
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func (c *Client) request(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	fullURL := c.BaseURL + path
	requestID := uuid.NewString()
	log := c.Logger.With(zap.String("request_id", requestID))
	log.Debug("request", zap.String("method", method), zap.String("url", fullURL))

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", "vrt-cli/0.1.0")
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	log.Debug("response", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(data)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     reasonPhrase(resp.Status, resp.StatusCode),
			Body:       string(data),
		}
	}
	return data, nil
}

// reasonPhrase strips the numeric code from a status line such as
// "400 Empty vrt.".
func reasonPhrase(status string, code int) string {
	return strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(code)))
}

// FormValues encodes a payload as the /vrtfile form body.
func FormValues(p inserter.Payload) url.Values {
	v := url.Values{}
	v.Set("name", p.Name)
	v.Set("foreign_table", p.ForeignTable)
	v.Set("vrt", p.VRT)
	v.Set("action", p.Action)
	return v
}

// InsertFields posts the payload to /vrtfile and returns the response body
// verbatim.
func (c *Client) InsertFields(ctx context.Context, p inserter.Payload) (string, error) {
	body := strings.NewReader(FormValues(p).Encode())
	data, err := c.request(ctx, http.MethodPost, VRTFilePath, body, "application/x-www-form-urlencoded")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Ping checks that the server answers at all. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, http.MethodGet, "/", http.NoBody, "")
	var apiErr *APIError
	if err != nil && !errors.As(err, &apiErr) {
		return err
	}
	return nil
}
