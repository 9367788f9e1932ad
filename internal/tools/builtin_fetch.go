package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"
)

const fetchCachePrefix = "fetch_url:"

func (tb *Toolbox) fetchTool() builtin {
	return builtin{
		spec: ToolSpec{
			Name:        "fetch_url",
			Description: "Fetch the contents of a URL with pagination support",
			Params: []Param{
				{Name: "url", Type: TypeString, Description: "The URL to fetch", Example: "https://example.com/", Required: true},
				{Name: "page", Type: "int", Description: "Optional page number, default 1", Example: "1"},
			},
		},
		handler: bind(tb.fetchURL),
	}
}

type fetchArgs struct {
	URL  string `arg:"url"`
	Page int    `arg:"page"`
}

// fetched is the cached form of a response.
type fetched struct {
	ResponseCode int    `json:"response_code"`
	Contents     []byte `json:"full_contents"`
}

func (tb *Toolbox) fetchURL(ctx context.Context, args fetchArgs) (any, error) {
	page, err := tb.fetch(ctx, args.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetch %s: %w", args.URL, ctx.Err())
		}
		return errorResult("%v", err), nil
	}

	size := tb.opts.FetchPageSize
	total := (len(page.Contents) + size - 1) / size
	if total < 1 {
		total = 1
	}
	n := args.Page
	if n < 1 {
		n = 1
	}
	if n > total {
		return errorResult("invalid page number, there are only %d page(s) available", total), nil
	}

	start := runeBoundary(page.Contents, (n-1)*size)
	end := runeBoundary(page.Contents, n*size)
	return map[string]any{
		"contents":      string(page.Contents[start:end]),
		"page":          n,
		"total_pages":   total,
		"response_code": page.ResponseCode,
	}, nil
}

// runeBoundary moves i back to the start of the UTF-8 sequence it falls
// in, so no page splits a character. Invalid UTF-8 is cut where it is.
func runeBoundary(b []byte, i int) int {
	if i >= len(b) {
		return len(b)
	}
	for j := i; j >= 0 && j > i-utf8.UTFMax; j-- {
		if utf8.RuneStart(b[j]) {
			return j
		}
	}
	return i
}

// fetch returns the whole body of url, from the cache when it is fresh.
// Failed requests are not cached.
func (tb *Toolbox) fetch(ctx context.Context, url string) (*fetched, error) {
	key := fetchCachePrefix + url
	if tb.opts.Cache != nil {
		data, ok, err := tb.opts.Cache.Get(ctx, key, tb.opts.FetchTTL)
		if err != nil {
			tb.logger.Warn("fetch cache read failed", "url", url, "error", err)
		}
		if ok {
			var f fetched
			if err := json.Unmarshal(data, &f); err == nil {
				tb.logger.Debug("fetch cache hit", "url", url)
				return &f, nil
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent())

	resp, err := tb.opts.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	f := &fetched{ResponseCode: resp.StatusCode, Contents: body}
	tb.logger.Debug("fetched url", "url", url, "status", resp.StatusCode, "bytes", len(body))

	if tb.opts.Cache != nil {
		if data, err := json.Marshal(f); err == nil {
			if err := tb.opts.Cache.Set(ctx, key, data); err != nil {
				tb.logger.Warn("fetch cache write failed", "url", url, "error", err)
			}
		}
	}
	return f, nil
}
