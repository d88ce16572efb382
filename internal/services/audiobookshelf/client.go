package audiobookshelf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"harmony/internal/config"
	"harmony/internal/logging"
	"harmony/internal/metadata"
	"harmony/internal/services"
)

const (
	defaultPageSize    = 100
	defaultConcurrency = 4
	maxErrorBody       = 512
)

// HTTPDoer describes the HTTP client used by the Audiobookshelf client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one Audiobookshelf server.
type Client struct {
	baseURL     string
	token       string
	http        HTTPDoer
	pageSize    int
	concurrency int
	libraryIDs  []string
	logger      *slog.Logger

	mu        sync.Mutex
	libraries []Library
	totals    map[string]int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithPageSize sets the number of items requested per page.
func WithPageSize(size int) Option {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

// WithConcurrency bounds concurrent page requests.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLibraryIDs restricts scanning to the given libraries.
func WithLibraryIDs(ids ...string) Option {
	return func(c *Client) {
		c.libraryIDs = slices.Clone(ids)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "audiobookshelf")
	}
}

// NewClient constructs a client for baseURL authenticated with token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:       strings.TrimSpace(token),
		http:        http.DefaultClient,
		pageSize:    defaultPageSize,
		concurrency: defaultConcurrency,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig constructs a client from the [library] config section.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Client {
	return NewClient(cfg.Library.URL, cfg.Library.Token,
		WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
		WithPageSize(cfg.Library.PageSize),
		WithConcurrency(cfg.Library.Concurrency),
		WithLibraryIDs(cfg.Library.LibraryIDs...),
		WithLogger(logger),
	)
}

// Libraries returns the book libraries to scan, in server order. The list is
// fetched once per client.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.libraries != nil {
		return c.libraries, nil
	}

	var resp librariesResponse
	if err := c.do(ctx, http.MethodGet, "/api/libraries", nil, &resp); err != nil {
		return nil, err
	}
	libraries := make([]Library, 0, len(resp.Libraries))
	for _, lib := range resp.Libraries {
		if len(c.libraryIDs) > 0 {
			if slices.Contains(c.libraryIDs, lib.ID) {
				libraries = append(libraries, lib)
			}
			continue
		}
		if lib.MediaType == "" || lib.MediaType == "book" {
			libraries = append(libraries, lib)
		}
	}
	c.libraries = libraries
	c.logger.Debug("libraries resolved", logging.Int("libraries", len(libraries)))
	return libraries, nil
}

// Cursor addresses the next page to fetch: a library index and a page number
// within it. The zero value starts at the beginning.
type Cursor struct {
	Library int
	Page    int
}

// String encodes the cursor as "library/page".
func (c Cursor) String() string {
	return strconv.Itoa(c.Library) + "/" + strconv.Itoa(c.Page)
}

// ParseCursor decodes a cursor produced by Cursor.String. An empty string is
// the start of the listing.
func ParseCursor(s string) (Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Cursor{}, nil
	}
	lib, page, ok := strings.Cut(s, "/")
	if !ok {
		return Cursor{}, fmt.Errorf("invalid cursor %q", s)
	}
	li, err := strconv.Atoi(lib)
	if err != nil || li < 0 {
		return Cursor{}, fmt.Errorf("invalid cursor library %q", s)
	}
	pi, err := strconv.Atoi(page)
	if err != nil || pi < 0 {
		return Cursor{}, fmt.Errorf("invalid cursor page %q", s)
	}
	return Cursor{Library: li, Page: pi}, nil
}

// FetchPage returns the records at cursor together with the cursor of the
// following batch. Up to concurrency pages of one library are requested at
// once and merged in page order. An empty Next means the listing is done.
// When a request fails the error comes with the cursor of the batch after
// the failed one.
func (c *Client) FetchPage(ctx context.Context, cursor string) (metadata.Page, error) {
	cur, err := ParseCursor(cursor)
	if err != nil {
		return metadata.Page{}, services.Wrap(services.ErrValidation, "scanning", "fetch page", "", err)
	}
	libraries, err := c.Libraries(ctx)
	if err != nil {
		return metadata.Page{}, err
	}
	if cur.Library >= len(libraries) {
		return metadata.Page{}, nil
	}
	lib := libraries[cur.Library]

	pages := make([]itemsResponse, c.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range pages {
		page := cur.Page + i
		g.Go(func() error {
			return c.fetchItems(gctx, lib.ID, page, &pages[i])
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return metadata.Page{}, err
		}
		// The following batch is still addressable, so the caller may skip
		// this one.
		next := Cursor{Library: cur.Library, Page: cur.Page + c.concurrency}
		return metadata.Page{Next: next.String()}, err
	}
	c.rememberTotal(lib.ID, pages[0].Total)

	var out metadata.Page
	exhausted := false
	for _, page := range pages {
		for _, item := range page.Results {
			out.Records = append(out.Records, item.toRecord())
		}
		if len(page.Results) < c.pageSize {
			exhausted = true
			break
		}
	}
	next := Cursor{Library: cur.Library, Page: cur.Page + c.concurrency}
	if exhausted {
		next = Cursor{Library: cur.Library + 1}
	}
	if next.Library < len(libraries) {
		out.Next = next.String()
	}
	out.Total = c.listingTotal(ctx, libraries)
	c.logger.Debug("page batch fetched",
		logging.String("library_id", lib.ID),
		logging.String("cursor", cur.String()),
		logging.Int("records", len(out.Records)),
		logging.Int("total", out.Total),
	)
	return out, nil
}

func (c *Client) rememberTotal(libraryID string, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totals == nil {
		c.totals = make(map[string]int)
	}
	c.totals[libraryID] = total
}

// listingTotal sums the item counts of all libraries. Counts not yet seen
// are requested with a single-item page; a library whose count cannot be
// read is left out.
func (c *Client) listingTotal(ctx context.Context, libraries []Library) int {
	sum := 0
	for _, lib := range libraries {
		c.mu.Lock()
		n, ok := c.totals[lib.ID]
		c.mu.Unlock()
		if !ok {
			var resp itemsResponse
			if err := c.fetchItemsLimit(ctx, lib.ID, 0, 1, &resp); err != nil {
				c.logger.Debug("library total unavailable",
					logging.String("library_id", lib.ID),
					logging.Error(err),
				)
				continue
			}
			n = resp.Total
			c.rememberTotal(lib.ID, n)
		}
		sum += n
	}
	return sum
}

func (c *Client) fetchItems(ctx context.Context, libraryID string, page int, dst *itemsResponse) error {
	return c.fetchItemsLimit(ctx, libraryID, page, c.pageSize, dst)
}

func (c *Client) fetchItemsLimit(ctx context.Context, libraryID string, page, limit int, dst *itemsResponse) error {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("page", strconv.Itoa(page))
	path := "/api/libraries/" + url.PathEscape(libraryID) + "/items?" + query.Encode()
	return c.do(ctx, http.MethodGet, path, nil, dst)
}

// Apply writes rec's value for field to the server.
func (c *Client) Apply(ctx context.Context, rec metadata.Record, field metadata.Field) error {
	payload, err := updatePayload(rec, field)
	if err != nil {
		return services.Wrap(services.ErrValidation, "merging", "apply", rec.ID, err)
	}
	path := "/api/items/" + url.PathEscape(rec.ID) + "/metadata"
	return c.do(ctx, http.MethodPatch, path, payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, dst any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "", "build request", method+" "+path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrTransient, "", "request", method+" "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		marker := services.ErrValidation
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			marker = services.ErrTransient
		}
		return services.Wrap(marker, "", "request", method+" "+path, statusErr)
	}
	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return services.Wrap(services.ErrTransient, "", "decode response", method+" "+path, err)
	}
	return nil
}

// StatusError is a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

var errUnsupported = errors.New("field cannot be written")

func errUnsupportedField(field metadata.Field) error {
	return fmt.Errorf("%w: %s", errUnsupported, field)
}
