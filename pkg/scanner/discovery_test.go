package scanner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apiward/apiward/pkg/types"
)

func newTestDiscoverer(t *testing.T, client *http.Client) *Discoverer {
	t.Helper()
	return NewDiscoverer(client, testLogger(t), "apiward-test/1.0")
}

func mustParse(t *testing.T, rawURL string) *url.URL {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u
}

func TestResolveDiscoversOpenAPIDocument(t *testing.T) {
	spec := `{"openapi":"3.0.0","servers":[{"url":"https://upstream.example/v2"}],` +
		`"paths":{"/users":{"get":{}},"/orders/{orderId}":{"get":{}}}}`

	mux := http.NewServeMux()
	mux.HandleFunc("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, spec)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDiscoverer(t, srv.Client())
	endpoints, source, err := d.Resolve(context.Background(), mustParse(t, srv.URL), types.ScanOptions{})

	require.NoError(t, err)
	assert.Equal(t, sourceSpec, source)
	// Only the server PATH is honored as prefix; the scan stays on the
	// target host. Path parameters get probe-friendly values.
	assert.Equal(t, []string{
		srv.URL + "/v2/orders/1",
		srv.URL + "/v2/users",
	}, endpoints)
}

func TestResolveRawYAMLSpecOption(t *testing.T) {
	yamlSpec := "swagger: \"2.0\"\nbasePath: /api\npaths:\n  /health:\n    get: {}\n  /users/{id}:\n    get: {}\n"

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := newTestDiscoverer(t, srv.Client())
	endpoints, source, err := d.Resolve(context.Background(), mustParse(t, srv.URL),
		types.ScanOptions{OpenAPISpec: yamlSpec})

	require.NoError(t, err)
	assert.Equal(t, sourceSpec, source)
	assert.Equal(t, []string{
		srv.URL + "/api/health",
		srv.URL + "/api/users/1",
	}, endpoints)
}

func TestResolveSpecOptionByURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/spec.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"swagger":"2.0","paths":{"/ping":{"get":{}}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDiscoverer(t, srv.Client())
	endpoints, source, err := d.Resolve(context.Background(), mustParse(t, srv.URL),
		types.ScanOptions{OpenAPISpec: srv.URL + "/internal/spec.json"})

	require.NoError(t, err)
	assert.Equal(t, sourceSpec, source)
	assert.Equal(t, []string{srv.URL + "/ping"}, endpoints)
}

func TestResolveUnusableSpecFallsBackToCommonPaths(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := newTestDiscoverer(t, srv.Client())
	endpoints, source, err := d.Resolve(context.Background(), mustParse(t, srv.URL),
		types.ScanOptions{OpenAPISpec: `{"not":"a spec"}`})

	require.NoError(t, err)
	assert.Equal(t, sourceCommon, source)
	assert.Len(t, endpoints, len(commonAPIPaths))
}

func TestResolveFollowsDocsPageSpecLink(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><script src="/static/openapi.json"></script></head><body>API docs</body></html>`)
	})
	mux.HandleFunc("/static/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"swagger":"2.0","paths":{"/ping":{"get":{}}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d := newTestDiscoverer(t, srv.Client())
	endpoints, source, err := d.Resolve(context.Background(), mustParse(t, srv.URL), types.ScanOptions{})

	require.NoError(t, err)
	assert.Equal(t, sourceSpec, source)
	assert.Equal(t, []string{srv.URL + "/ping"}, endpoints)
}

func TestResolveCallerList(t *testing.T) {
	base := mustParse(t, "https://api.example.com")
	d := newTestDiscoverer(t, &http.Client{})

	endpoints, source, err := d.Resolve(context.Background(), base, types.ScanOptions{
		Endpoints: []string{"/users", "https://other.example.com/abs", "/users"},
	})

	require.NoError(t, err)
	assert.Equal(t, sourceProvided, source)
	assert.Equal(t, []string{
		"https://api.example.com/users",
		"https://other.example.com/abs",
	}, endpoints)
}

func TestResolveCallerListRejectsInvalidEntry(t *testing.T) {
	base := mustParse(t, "https://api.example.com")
	d := newTestDiscoverer(t, &http.Client{})

	_, _, err := d.Resolve(context.Background(), base, types.ScanOptions{
		Endpoints: []string{"http://[::1"},
	})

	assert.Error(t, err)
}

func TestResolveFallsBackToCommonPaths(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	d := newTestDiscoverer(t, srv.Client())
	endpoints, source, err := d.Resolve(context.Background(), mustParse(t, srv.URL), types.ScanOptions{})

	require.NoError(t, err)
	assert.Equal(t, sourceCommon, source)
	assert.Len(t, endpoints, len(commonAPIPaths))
	assert.Contains(t, endpoints, srv.URL+"/api/users")
	assert.Contains(t, endpoints, srv.URL+"/health")
}

func TestFillPathParams(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/users/{id}", "/users/1"},
		{"/orders/{orderId}/items/{itemId}", "/orders/1/items/1"},
		{"/tenants/{tenantUuid}", "/tenants/00000000-0000-0000-0000-000000000001"},
		{"/accounts/{username}", "/accounts/testuser"},
		{"/files/{name}", "/files/test"},
		{"/static", "/static"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, fillPathParams(tt.path), "path %s", tt.path)
	}
}

func TestParseOpenAPIDocumentRejectsPathless(t *testing.T) {
	_, err := parseOpenAPIDocument([]byte(`{"openapi":"3.0.0","info":{"title":"x"}}`))
	assert.Error(t, err)

	_, err = parseOpenAPIDocument([]byte(`not a document at {{{`))
	assert.Error(t, err)
}

func TestExtractSpecLink(t *testing.T) {
	base := mustParse(t, "https://api.example.com")

	html := `<html><body><a href="https://cdn.example.com/v1/swagger.yaml">spec</a></body></html>`
	assert.Equal(t, "https://cdn.example.com/v1/swagger.yaml", extractSpecLink(base, []byte(html)))

	relative := `<html><head><link rel="spec" href="/assets/openapi.json"></head></html>`
	assert.Equal(t, "https://api.example.com/assets/openapi.json", extractSpecLink(base, []byte(relative)))

	assert.Empty(t, extractSpecLink(base, []byte(`<html><body><a href="/about">about</a></body></html>`)))
}
