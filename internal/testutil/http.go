package testutil

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
)

// BaseURL is the origin test requests are made against. Its https scheme
// gives requests a TLS connection state.
const BaseURL = "https://codeflow.test"

// HTTPResult captures HTTP response details for test assertions
type HTTPResult struct {
	Code    int
	Error   error
	Headers http.Header
	Body    []byte
}

// Header represents an HTTP header key-value pair
type Header struct {
	Key   string
	Value string
}

// ContentTypeForm returns a header for form-urlencoded content type
func ContentTypeForm() Header {
	return Header{
		Key:   "Content-Type",
		Value: "application/x-www-form-urlencoded",
	}
}

// BasicAuth returns an Authorization header for HTTP Basic credentials
func BasicAuth(username, password string) Header {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth(username, password)
	return Header{
		Key:   "Authorization",
		Value: req.Header.Get("Authorization"),
	}
}

// ExpectStatus validates the HTTP status code and fails the test if it doesn't match
func ExpectStatus(
	t *testing.T,
	expected int,
	result HTTPResult,
) {
	t.Helper()
	if result.Error != nil {
		t.Fatalf("request error: %v", result.Error)
	}
	if result.Code != expected {
		t.Fatalf("expected status %d, got %d. Body: %s", expected, result.Code, string(result.Body))
	}
}

// ExpectRedirect validates a redirect response and returns the Location header
func ExpectRedirect(
	t *testing.T,
	result HTTPResult,
) *url.URL {
	t.Helper()
	if result.Code != http.StatusFound {
		t.Fatalf("expected redirect (302), got %d. Body: %s", result.Code, string(result.Body))
	}
	location := result.Headers.Get("Location")
	if location == "" {
		t.Fatal("expected Location header in redirect")
	}
	u, err := url.Parse(location)
	if err != nil {
		t.Fatalf("failed to parse Location %q: %v", location, err)
	}
	return u
}

// ExpectBodyContains fails the test when the response body lacks want
func ExpectBodyContains(
	t *testing.T,
	result HTTPResult,
	want string,
) {
	t.Helper()
	if !strings.Contains(string(result.Body), want) {
		t.Fatalf("expected body to contain %q. Body: %s", want, string(result.Body))
	}
}

// DecodeJSON decodes the response body into v
func DecodeJSON(
	t *testing.T,
	result HTTPResult,
	v any,
) {
	t.Helper()
	if err := json.Unmarshal(result.Body, v); err != nil {
		t.Fatalf("failed to decode JSON: %v\n%s", err, string(result.Body))
	}
}

var csrfPattern = regexp.MustCompile(`name="_csrf" value="([^"]*)"`)

// CSRFToken extracts the CSRF token from a rendered form
func CSRFToken(
	t *testing.T,
	result HTTPResult,
) string {
	t.Helper()
	m := csrfPattern.FindSubmatch(result.Body)
	if m == nil {
		t.Fatalf("no csrf token in body: %s", string(result.Body))
	}
	return html.UnescapeString(string(m[1]))
}

// Do serves one request against router and records the response
func Do(
	router http.Handler,
	method string,
	target string,
	body io.Reader,
	headers ...Header,
) HTTPResult {
	req := httptest.NewRequest(method, target, body)
	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return HTTPResult{Code: res.Code, Headers: res.Header(), Body: res.Body.Bytes()}
}

// Get performs a GET request against BaseURL
func Get(
	router http.Handler,
	path string,
	headers ...Header,
) HTTPResult {
	return Do(router, http.MethodGet, BaseURL+path, nil, headers...)
}

// PostForm performs a POST with form-urlencoded body against BaseURL
func PostForm(
	router http.Handler,
	path string,
	values url.Values,
	headers ...Header,
) HTTPResult {
	headers = append([]Header{ContentTypeForm()}, headers...)
	return Do(router, http.MethodPost, BaseURL+path, strings.NewReader(values.Encode()), headers...)
}

// Browser is a user agent that carries cookies between requests
type Browser struct {
	router http.Handler
	jar    *cookiejar.Jar
}

func NewBrowser(
	t *testing.T,
	router http.Handler,
) *Browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("failed to create cookie jar: %v", err)
	}
	return &Browser{router: router, jar: jar}
}

func (b *Browser) do(
	method string,
	path string,
	body io.Reader,
	headers ...Header,
) HTTPResult {
	req := httptest.NewRequest(method, BaseURL+path, body)
	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}
	for _, c := range b.jar.Cookies(req.URL) {
		req.AddCookie(c)
	}

	res := httptest.NewRecorder()
	b.router.ServeHTTP(res, req)

	b.jar.SetCookies(req.URL, res.Result().Cookies())
	return HTTPResult{Code: res.Code, Headers: res.Header(), Body: res.Body.Bytes()}
}

func (b *Browser) Get(path string) HTTPResult {
	return b.do(http.MethodGet, path, nil)
}

func (b *Browser) PostForm(path string, values url.Values) HTTPResult {
	return b.do(http.MethodPost, path, strings.NewReader(values.Encode()), ContentTypeForm())
}

// Cookie returns the value of the named cookie the browser holds
func (b *Browser) Cookie(name string) (string, error) {
	u, _ := url.Parse(BaseURL + "/")
	for _, c := range b.jar.Cookies(u) {
		if c.Name == name {
			return c.Value, nil
		}
	}
	return "", fmt.Errorf("no cookie named %q", name)
}
