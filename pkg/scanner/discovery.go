package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"gopkg.in/yaml.v3"

	"github.com/apiward/apiward/internal/httpclient"
	"github.com/apiward/apiward/internal/logger"
	"github.com/apiward/apiward/pkg/types"
)

// Endpoint sources, reported in the scan log.
const (
	sourceSpec     = "openapi_document"
	sourceProvided = "caller_list"
	sourceCommon   = "common_paths"
)

// commonAPIPaths is probed when no spec and no caller list is available.
var commonAPIPaths = []string{
	"/api",
	"/api/v1",
	"/api/v2",
	"/api/users",
	"/api/user",
	"/api/account",
	"/api/profile",
	"/api/products",
	"/api/items",
	"/api/orders",
	"/api/search",
	"/api/data",
	"/api/admin",
	"/api/config",
	"/api/auth",
	"/api/login",
	"/api/status",
	"/api/health",
	"/api/info",
	"/api/version",
	"/users",
	"/products",
	"/orders",
	"/health",
	"/status",
	"/version",
}

// specDocPaths are fetched opportunistically before falling back to
// commonAPIPaths. The first two serve raw documents; the last two usually
// serve JSON or an HTML page linking to the real document.
var specDocPaths = []string{"/openapi.json", "/swagger.json", "/api-docs", "/docs"}

// openAPIDocument is the subset of an OpenAPI/Swagger document the scanner
// consumes: enough to enumerate paths and recognize a server prefix.
type openAPIDocument struct {
	OpenAPI  string                            `json:"openapi" yaml:"openapi"`
	Swagger  string                            `json:"swagger" yaml:"swagger"`
	BasePath string                            `json:"basePath" yaml:"basePath"`
	Servers  []openAPIServer                   `json:"servers" yaml:"servers"`
	Paths    map[string]map[string]interface{} `json:"paths" yaml:"paths"`
}

type openAPIServer struct {
	URL string `json:"url" yaml:"url"`
}

// Discoverer resolves the endpoint list for a scan.
type Discoverer struct {
	client    *http.Client
	log       *logger.Logger
	userAgent string
}

// NewDiscoverer builds a discoverer using its own short-timeout client.
func NewDiscoverer(client *http.Client, log *logger.Logger, userAgent string) *Discoverer {
	return &Discoverer{
		client:    client,
		log:       log.WithComponent("discovery"),
		userAgent: userAgent,
	}
}

// Resolve returns the absolute endpoint URLs to probe and the source they
// came from. Exactly one source applies per scan: a provided OpenAPI
// document, a caller-supplied list, or the built-in common paths (with an
// opportunistic fetch of well-known spec locations first). Discovery
// failures are not fatal; they fall back to the common-path list.
func (d *Discoverer) Resolve(ctx context.Context, base *url.URL, opts types.ScanOptions) ([]string, string, error) {
	if opts.OpenAPISpec != "" {
		endpoints, err := d.fromSpecOption(ctx, base, opts.OpenAPISpec)
		if err != nil {
			d.log.WithContext(ctx).Warnw("OpenAPI document unusable, falling back to common paths",
				"error", err)
			return d.fromCommonPaths(base), sourceCommon, nil
		}
		return endpoints, sourceSpec, nil
	}

	if len(opts.Endpoints) > 0 {
		endpoints, err := d.fromCallerList(base, opts.Endpoints)
		if err != nil {
			return nil, "", err
		}
		return endpoints, sourceProvided, nil
	}

	if endpoints := d.fromWellKnownDocs(ctx, base); len(endpoints) > 0 {
		return endpoints, sourceSpec, nil
	}
	return d.fromCommonPaths(base), sourceCommon, nil
}

// fromSpecOption handles the OpenAPISpec option, which carries either a URL
// to fetch or the raw document text.
func (d *Discoverer) fromSpecOption(ctx context.Context, base *url.URL, spec string) ([]string, error) {
	var data []byte
	if strings.HasPrefix(spec, "http://") || strings.HasPrefix(spec, "https://") {
		fetched, err := d.fetch(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OpenAPI document: %w", err)
		}
		data = fetched
	} else {
		data = []byte(spec)
	}

	doc, err := parseOpenAPIDocument(data)
	if err != nil {
		return nil, err
	}
	return d.endpointsFromDocument(base, doc), nil
}

func (d *Discoverer) fromCallerList(base *url.URL, endpoints []string) ([]string, error) {
	resolved := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		ref, err := url.Parse(e)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", e, err)
		}
		resolved = append(resolved, base.ResolveReference(ref).String())
	}
	return dedupe(resolved), nil
}

func (d *Discoverer) fromCommonPaths(base *url.URL) []string {
	endpoints := make([]string, 0, len(commonAPIPaths))
	for _, path := range commonAPIPaths {
		endpoints = append(endpoints, base.String()+path)
	}
	return endpoints
}

// fromWellKnownDocs tries the well-known spec locations. HTML answers are
// searched for a linked spec document before giving up on that location.
func (d *Discoverer) fromWellKnownDocs(ctx context.Context, base *url.URL) []string {
	for _, path := range specDocPaths {
		docURL := base.String() + path

		data, err := d.fetch(ctx, docURL)
		if err != nil {
			d.log.WithContext(ctx).Debugw("No spec document at well-known path",
				"url", docURL, "error", err)
			continue
		}

		doc, err := parseOpenAPIDocument(data)
		if err == nil {
			d.log.WithContext(ctx).Infow("OpenAPI document discovered", "url", docURL)
			return d.endpointsFromDocument(base, doc)
		}

		// Documentation pages link to the machine-readable spec.
		linked := extractSpecLink(base, data)
		if linked == "" {
			continue
		}
		data, err = d.fetch(ctx, linked)
		if err != nil {
			continue
		}
		if doc, err = parseOpenAPIDocument(data); err == nil {
			d.log.WithContext(ctx).Infow("OpenAPI document discovered via docs page",
				"page", docURL, "spec", linked)
			return d.endpointsFromDocument(base, doc)
		}
	}
	return nil
}

func (d *Discoverer) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/json, application/yaml, text/html")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpclient.CloseBody(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// endpointsFromDocument expands a document into absolute endpoint URLs,
// sorted for reproducible scan order. Paths resolve against the scan
// target; only the PATH of a declared server is honored as prefix, never
// its host, so a scan stays on the host the operator named.
func (d *Discoverer) endpointsFromDocument(base *url.URL, doc *openAPIDocument) []string {
	prefix := doc.BasePath
	if prefix == "" && len(doc.Servers) > 0 {
		if server, err := url.Parse(doc.Servers[0].URL); err == nil {
			prefix = server.Path
		}
	}
	prefix = strings.TrimRight(prefix, "/")

	paths := make([]string, 0, len(doc.Paths))
	for path := range doc.Paths {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	endpoints := make([]string, 0, len(paths))
	for _, path := range paths {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		endpoints = append(endpoints, base.String()+prefix+fillPathParams(path))
	}
	return dedupe(endpoints)
}

var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

// fillPathParams replaces templated parameters with probe-friendly example
// values, e.g. /users/{id} -> /users/1.
func fillPathParams(path string) string {
	return pathParamPattern.ReplaceAllStringFunc(path, func(match string) string {
		param := strings.ToLower(strings.Trim(match, "{}"))
		switch {
		case strings.Contains(param, "uuid"):
			return "00000000-0000-0000-0000-000000000001"
		case strings.Contains(param, "id"):
			return "1"
		case strings.Contains(param, "user"):
			return "testuser"
		default:
			return "test"
		}
	})
}

// parseOpenAPIDocument decodes JSON first, then YAML. A document with no
// paths is rejected so arbitrary JSON never masquerades as a spec.
func parseOpenAPIDocument(data []byte) (*openAPIDocument, error) {
	var doc openAPIDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("document is neither JSON nor YAML: %w", err)
		}
	}
	if len(doc.Paths) == 0 {
		return nil, fmt.Errorf("document contains no paths")
	}
	return &doc, nil
}

var specLinkPattern = regexp.MustCompile(`(?i)(swagger|openapi)[^"']*\.(json|ya?ml)$`)

// extractSpecLink pulls the first spec-document reference out of an HTML
// documentation page.
func extractSpecLink(base *url.URL, html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("a[href], link[href], script[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		ref, ok := sel.Attr("href")
		if !ok {
			ref, _ = sel.Attr("src")
		}
		if ref == "" || !specLinkPattern.MatchString(ref) {
			return true
		}
		parsed, err := url.Parse(ref)
		if err != nil {
			return true
		}
		found = base.ResolveReference(parsed).String()
		return false
	})
	return found
}

func dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := urls[:0]
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
