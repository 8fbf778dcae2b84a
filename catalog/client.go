// Package catalog is a thin client for the Aladin TTB open API.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/bookroad/config"
	"github.com/aluiziolira/bookroad/metrics"
	"github.com/gocolly/colly/v2"
)

const (
	endpointList   = "ItemList.aspx"
	endpointSearch = "ItemSearch.aspx"
	endpointLookup = "ItemLookUp.aspx"

	searchTargetBook = "Book"
	sortSalesPoint   = "SalesPoint"

	sinkKey  = "sink"
	startKey = "start"

	// requestIDHeader links an outgoing request to its caller's context. The
	// transport strips it before the request leaves the process.
	requestIDHeader = "X-Bookroad-Request"
)

// ErrNoItem is returned by ItemLookup when the catalog has no entry.
var ErrNoItem = errors.New("catalog: no item")

// Client issues catalog requests through a colly collector. It is safe for
// concurrent use; LimitRule bounds the number of in-flight requests.
// Cancelling a call's context aborts its in-flight HTTP request.
type Client struct {
	cfg       *config.Config
	baseURL   string
	collector *colly.Collector
	inflight  *inflightContexts
	Metrics   *metrics.Metrics

	requestCount int64
	errorCount   int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// responseSink carries one request's outcome out of the collector callbacks.
type responseSink struct {
	status int
	body   []byte
	err    error
}

// NewClient builds a catalog client configured from cfg.
func NewClient(cfg *config.Config, m *metrics.Metrics) (*Client, error) {
	parsed, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("api base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	inflight := &inflightContexts{}
	collector.WithTransport(inflight.wrap(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}))
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	c := &Client{
		cfg:          cfg,
		baseURL:      strings.TrimSuffix(cfg.APIBaseURL, "/"),
		collector:    collector,
		inflight:     inflight,
		Metrics:      m,
		errorsByType: make(map[string]int),
	}
	c.configureHandlers()
	return c, nil
}

// WithTransport swaps the HTTP transport, used to stub the catalog in tests.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.collector.WithTransport(c.inflight.wrap(rt))
}

// ItemList pages through a fixed list (bestsellers, new releases) for a category.
func (c *Client) ItemList(ctx context.Context, list ListType, categoryID, page, pageSize int) (*ListResponse, error) {
	params := url.Values{}
	params.Set("QueryType", string(list))
	params.Set("CategoryId", strconv.Itoa(categoryID))
	params.Set("SearchTarget", searchTargetBook)
	params.Set("start", strconv.Itoa(page))
	params.Set("MaxResults", strconv.Itoa(pageSize))
	return c.list(ctx, endpointList, params)
}

// ItemSearch pages through keyword search results for a category, sorted by sales.
func (c *Client) ItemSearch(ctx context.Context, query string, categoryID, page, pageSize int) (*ListResponse, error) {
	params := url.Values{}
	params.Set("Query", query)
	params.Set("CategoryId", strconv.Itoa(categoryID))
	params.Set("SearchTarget", searchTargetBook)
	params.Set("Sort", sortSalesPoint)
	params.Set("start", strconv.Itoa(page))
	params.Set("MaxResults", strconv.Itoa(pageSize))
	return c.list(ctx, endpointSearch, params)
}

// ItemLookup fetches the detail record for one ISBN-13.
func (c *Client) ItemLookup(ctx context.Context, isbn string) (*Item, error) {
	params := url.Values{}
	params.Set("ItemId", isbn)
	params.Set("ItemIdType", "ISBN13")
	params.Set("OptResult", LookupOptions)

	resp, err := c.list(ctx, endpointLookup, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoItem, isbn)
	}
	item := resp.Items[0]
	return &item, nil
}

// Stats returns request and error counters observed so far.
func (c *Client) Stats() (requests, errs int, byType map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byType = make(map[string]int, len(c.errorsByType))
	for k, v := range c.errorsByType {
		byType[k] = v
	}
	return int(atomic.LoadInt64(&c.requestCount)), int(atomic.LoadInt64(&c.errorCount)), byType
}

func (c *Client) list(ctx context.Context, endpoint string, params url.Values) (*ListResponse, error) {
	body, err := c.get(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	var resp ListResponse
	if err := json.Unmarshal(sanitizeBody(body), &resp); err != nil {
		err = ErrMalformed{Err: err}
		c.recordError(err)
		return nil, err
	}
	if resp.ErrorCode != 0 {
		err := ErrAPI{Code: resp.ErrorCode, Message: resp.ErrorMessage}
		c.recordError(err)
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	params.Set("TTBKey", c.cfg.TTBKey)
	params.Set("Output", "JS")
	params.Set("Version", c.cfg.APIVersion)
	target := c.baseURL + "/" + endpoint + "?" + params.Encode()

	sink := &responseSink{}
	reqCtx := colly.NewContext()
	reqCtx.Put(sinkKey, sink)
	reqCtx.Put("endpoint", endpoint)

	id, release := c.inflight.bind(ctx)
	defer release()
	hdr := http.Header{}
	hdr.Set(requestIDHeader, id)

	c.Metrics.IncRequest(strings.TrimSuffix(endpoint, ".aspx"))
	err := c.collector.Request(http.MethodGet, target, nil, reqCtx, hdr)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if sink.err != nil {
		return nil, sink.err
	}
	if err != nil {
		classified := classifyError(err, sink.status)
		c.recordError(classified)
		return nil, classified
	}
	return sink.body, nil
}

func (c *Client) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(startKey, time.Now())
		current := atomic.AddInt64(&c.requestCount, 1)
		if current%50 == 0 {
			slog.Debug("catalog request progress",
				slog.Int64("requests", current),
				slog.String("endpoint", r.Ctx.Get("endpoint")),
			)
		}
	})

	c.collector.OnResponse(func(r *colly.Response) {
		if start, ok := r.Request.Ctx.GetAny(startKey).(time.Time); ok {
			c.Metrics.ObserveDuration(time.Since(start))
		}
		if sink, ok := r.Ctx.GetAny(sinkKey).(*responseSink); ok {
			sink.status = r.StatusCode
			sink.body = r.Body
		}
	})

	c.collector.OnError(func(r *colly.Response, err error) {
		if errors.Is(err, context.Canceled) {
			if r != nil && r.Ctx != nil {
				if sink, ok := r.Ctx.GetAny(sinkKey).(*responseSink); ok {
					sink.err = err
				}
			}
			return
		}
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
		}
		classified := classifyError(err, statusCode)

		target := ""
		if r != nil && r.Request != nil && r.Request.URL != nil {
			target = redactKey(r.Request.URL)
		}
		slog.Warn("catalog request error",
			slog.String("url", target),
			slog.String("category", ErrorType(classified)),
			slog.Any("error", err),
		)

		if r != nil && r.Ctx != nil {
			if sink, ok := r.Ctx.GetAny(sinkKey).(*responseSink); ok {
				sink.status = statusCode
				sink.err = classified
			}
		}
		c.recordError(classified)
	})
}

func (c *Client) recordError(err error) {
	atomic.AddInt64(&c.errorCount, 1)
	category := ErrorType(err)
	c.mu.Lock()
	c.errorsByType[category]++
	c.mu.Unlock()
	c.Metrics.IncError(category)
}

// sanitizeBody repairs the JavaScript-style escaped quotes the JS output
// format emits, which encoding/json rejects.
func sanitizeBody(body []byte) []byte {
	body = bytes.TrimSpace(body)
	body = bytes.TrimSuffix(body, []byte(";"))
	return bytes.ReplaceAll(body, []byte(`\'`), []byte(`'`))
}

func redactKey(u *url.URL) string {
	clone := *u
	q := clone.Query()
	if q.Has("TTBKey") {
		q.Set("TTBKey", "redacted")
		clone.RawQuery = q.Encode()
	}
	return clone.String()
}

// inflightContexts maps request ids to caller contexts so the transport can
// bind each colly request to the context it was issued under.
type inflightContexts struct {
	next atomic.Uint64
	ctxs sync.Map
}

func (in *inflightContexts) bind(ctx context.Context) (string, func()) {
	id := strconv.FormatUint(in.next.Add(1), 10)
	in.ctxs.Store(id, ctx)
	return id, func() { in.ctxs.Delete(id) }
}

func (in *inflightContexts) wrap(rt http.RoundTripper) http.RoundTripper {
	return &contextTransport{base: rt, inflight: in}
}

type contextTransport struct {
	base     http.RoundTripper
	inflight *inflightContexts
}

// RoundTrip keeps the collector's own deadline and additionally cancels the
// request when the caller's context is done.
func (t *contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	id := req.Header.Get(requestIDHeader)
	v, ok := t.inflight.ctxs.Load(id)
	if !ok {
		if id != "" {
			req = req.Clone(req.Context())
			req.Header.Del(requestIDHeader)
		}
		return t.base.RoundTrip(req)
	}

	ctx, cancel := context.WithCancel(req.Context())
	stop := context.AfterFunc(v.(context.Context), cancel)
	release := func() {
		stop()
		cancel()
	}

	out := req.Clone(ctx)
	out.Header.Del(requestIDHeader)
	resp, err := t.base.RoundTrip(out)
	if err != nil {
		release()
		return nil, err
	}
	resp.Body = &releasingBody{ReadCloser: resp.Body, release: release}
	return resp, nil
}

// releasingBody frees the request's cancel hooks once the body is closed.
type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.release()
	return err
}
