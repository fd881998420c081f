package client

import (
	"bytes"
	"io"
	"net/http"
	"path"

	"github.com/umd-lib/plastron-go/graph"
	"github.com/umd-lib/plastron-go/internal/perr"
	"github.com/umd-lib/plastron-go/internal/plog"
)

// OmitServerManagedTriples is the Prefer header value that requests only
// the user-authored triples of a resource's description.
const OmitServerManagedTriples = `return=representation; omit="http://fedora.info/definitions/v4/repository#ServerManaged"`

// ResourceURI pairs a resource's own URI with the URI of the RDF
// description that describes it. For RDF sources the two coincide; for
// binaries they differ.
type ResourceURI struct {
	URI            string
	DescriptionURI string
}

func (r ResourceURI) String() string { return r.URI }

// TypedText pairs a media type with a text body, as returned by
// GetDescription.
type TypedText struct {
	MediaType string
	Value     string
}

// Client is a thin, opinionated LDP client: CRUD plus description
// resolution and graph convenience methods (C3).
type Client struct {
	Endpoint   Endpoint
	HTTPClient *http.Client
	UserAgent  string
	OnBehalfOf string
	Username   string
	Password   string
	Logger     *plog.ContextLogger
}

// NewClient builds a Client for endpoint. If httpClient is nil, a default
// client is used.
func NewClient(endpoint Endpoint, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{Endpoint: endpoint, HTTPClient: httpClient, Logger: plog.New(nil, map[string]interface{}{"component": "client"})}
}

// doRequest is the single point every HTTP verb method funnels through, so
// that TransactionClient can wrap it to rewrite URIs into the transaction's
// scope without duplicating header/auth handling.
func (c *Client) doRequest(method, url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if c.OnBehalfOf != "" {
		req.Header.Set("On-Behalf-Of", c.OnBehalfOf)
	}
	if host, ok := c.Endpoint.externalHostHeader(); ok {
		req.Header.Set("X-Forwarded-Host", host)
	}
	if scheme, ok := c.Endpoint.externalSchemeHeader(); ok {
		req.Header.Set("X-Forwarded-Proto", scheme)
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	c.Logger.Debugf("%s %s", method, url)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	c.Logger.Debugf("%d %s", resp.StatusCode, resp.Status)
	return resp, nil
}

func (c *Client) Get(url string, headers map[string]string) (*http.Response, error) {
	return c.doRequest(http.MethodGet, url, headers, nil)
}
func (c *Client) Head(url string, headers map[string]string) (*http.Response, error) {
	return c.doRequest(http.MethodHead, url, headers, nil)
}
func (c *Client) Post(url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	return c.doRequest(http.MethodPost, url, headers, body)
}
func (c *Client) Put(url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	return c.doRequest(http.MethodPut, url, headers, body)
}
func (c *Client) Patch(url string, headers map[string]string, body io.Reader) (*http.Response, error) {
	return c.doRequest(http.MethodPatch, url, headers, body)
}
func (c *Client) Delete(url string, headers map[string]string) (*http.Response, error) {
	return c.doRequest(http.MethodDelete, url, headers, nil)
}

// GetDescription fetches the RDF description at url. When includeServerManaged
// is false, a Prefer header suppresses server-managed triples.
func (c *Client) GetDescription(url string, accept string, includeServerManaged bool) (TypedText, error) {
	if accept == "" {
		accept = "application/n-triples"
	}
	headers := map[string]string{"Accept": accept}
	if !includeServerManaged {
		headers["Prefer"] = OmitServerManagedTriples
	}
	resp, err := c.Get(url, headers)
	if err != nil {
		return TypedText{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return TypedText{}, perr.NewClientError(url, resp.StatusCode, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TypedText{}, err
	}
	return TypedText{MediaType: resp.Header.Get("Content-Type"), Value: string(body)}, nil
}

// GetGraph fetches and parses the N-Triples description at url into a
// Graph. Only application/n-triples is supported by the parser in this
// package; other media types would need a separate Turtle/JSON-LD parser,
// which is out of scope here since the repository always emits N-Triples
// to this client (it requests that Accept type explicitly).
func (c *Client) GetGraph(url string, includeServerManaged bool) (*graph.Graph, error) {
	text, err := c.GetDescription(url, "application/n-triples", includeServerManaged)
	if err != nil {
		return nil, err
	}
	return graph.ParseNTriples(text.Value)
}

// GetDescriptionURI checks resp (or, if nil, issues a fresh HEAD request)
// for a Link header with rel="describedby"; absent, the resource describes
// itself.
func (c *Client) GetDescriptionURI(uri string, resp *http.Response) (string, error) {
	if resp != nil {
		if resp.StatusCode >= 400 {
			return "", perr.NewClientError(uri, resp.StatusCode, resp.Status)
		}
		if link, ok := findLinkRel(resp.Header, "describedby"); ok {
			return link, nil
		}
		return uri, nil
	}
	headResp, err := c.Head(uri, nil)
	if err != nil {
		return "", err
	}
	defer headResp.Body.Close()
	return c.GetDescriptionURI(uri, headResp)
}

// IsReachable issues a HEAD request to the endpoint and reports whether the
// response was a success.
func (c *Client) IsReachable() bool {
	resp, err := c.Head(c.Endpoint.URL(), nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// Exists issues a HEAD request and reports whether it returned 200 OK.
func (c *Client) Exists(uri string) (bool, error) {
	resp, err := c.Head(uri, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// PathExists reports whether the endpoint-relative path exists.
func (c *Client) PathExists(p string) (bool, error) {
	return c.Exists(c.Endpoint.URL() + p)
}

func getLocation(resp *http.Response, logger *plog.ContextLogger) string {
	loc := resp.Header.Get("Location")
	if loc == "" {
		logger.Warn("no Location header in response")
	}
	return loc
}

// CreateOptions configures Create.
type CreateOptions struct {
	Path          string // PUT at Endpoint.URL()+Path
	URL           string // PUT directly at URL
	ContainerPath string // POST under this container path
	Slug          string // Slug header for POST
	Headers       map[string]string
	Body          io.Reader
}

// Create creates a resource per spec §4.3: PUT when Path or URL is given,
// POST (optionally with a Slug header) under ContainerPath otherwise.
func (c *Client) Create(opts CreateOptions) (ResourceURI, error) {
	var resp *http.Response
	var err error
	switch {
	case opts.URL != "":
		resp, err = c.Put(opts.URL, opts.Headers, opts.Body)
	case opts.Path != "":
		resp, err = c.Put(c.Endpoint.URL()+opts.Path, opts.Headers, opts.Body)
	default:
		headers := opts.Headers
		if headers == nil {
			headers = map[string]string{}
		}
		if opts.Slug != "" {
			headers["Slug"] = opts.Slug
		}
		containerPath := opts.ContainerPath
		if containerPath == "" {
			containerPath = c.Endpoint.DefaultPath
		}
		resp, err = c.Post(c.Endpoint.URL()+containerPath, headers, opts.Body)
	}
	if err != nil {
		return ResourceURI{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return ResourceURI{}, perr.NewClientError(opts.URL, resp.StatusCode, resp.Status)
	}
	createdURI := getLocation(resp, c.Logger)
	if createdURI == "" {
		createdURI = opts.URL
	}
	descURI, err := c.GetDescriptionURI(createdURI, resp)
	if err != nil {
		return ResourceURI{}, err
	}
	return ResourceURI{URI: createdURI, DescriptionURI: descURI}, nil
}

// PutGraph replaces a resource's description with g.
func (c *Client) PutGraph(url string, g *graph.Graph) (*http.Response, error) {
	descURI, err := c.GetDescriptionURI(url, nil)
	if err != nil {
		return nil, err
	}
	return c.Put(descURI, map[string]string{"Content-Type": "application/n-triples"}, bytes.NewBufferString(g.SerializeNTriples()))
}

// PatchGraph builds a SPARQL Update from deletes/inserts and PATCHes url.
func (c *Client) PatchGraph(url string, deletes, inserts *graph.Graph) (*http.Response, error) {
	update := graph.BuildSPARQLUpdate(deletes, inserts)
	c.Logger.Debug(update)
	return c.Patch(url, map[string]string{"Content-Type": "application/sparql-update"}, bytes.NewBufferString(update))
}

// PathsToCreate returns the ancestor paths (including targetPath) that do
// not yet exist in the repository, in top-down order, mirroring the
// original's paths_to_create helper used to bootstrap a container path.
func PathsToCreate(c *Client, targetPath string) ([]string, error) {
	exists, err := c.PathExists(targetPath)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}
	toCreate := []string{targetPath}
	for p := path.Dir(targetPath); p != "/" && p != "."; p = path.Dir(p) {
		exists, err := c.PathExists(p)
		if err != nil {
			return nil, err
		}
		if exists {
			break
		}
		toCreate = append([]string{p}, toCreate...)
	}
	return toCreate, nil
}

// CreateAtPath ensures every ancestor of targetPath exists, creating each
// missing one in turn, and attaches g (if non-nil) to the final segment.
func (c *Client) CreateAtPath(targetPath string, g *graph.Graph) (ResourceURI, error) {
	paths, err := PathsToCreate(c, targetPath)
	if err != nil {
		return ResourceURI{}, err
	}
	if len(paths) == 0 {
		c.Logger.Infof("%s already exists", targetPath)
		return ResourceURI{}, nil
	}
	var resource ResourceURI
	for _, p := range paths {
		if p == targetPath && g != nil {
			resource, err = c.Create(CreateOptions{
				Path:    p,
				Headers: map[string]string{"Content-Type": "text/turtle"},
				Body:    bytes.NewBufferString(g.SerializeNTriples()),
			})
		} else {
			resource, err = c.Create(CreateOptions{Path: p})
		}
		if err != nil {
			return ResourceURI{}, err
		}
	}
	return resource, nil
}

// findLinkRel parses RFC 8288 Link headers looking for the given rel value.
func findLinkRel(h http.Header, rel string) (string, bool) {
	for _, raw := range h.Values("Link") {
		for _, part := range splitLinkHeader(raw) {
			url, params := parseLinkPart(part)
			if params["rel"] == rel {
				return url, true
			}
		}
	}
	return "", false
}
