package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"obralog/internal/imaging"

	"golang.org/x/sync/errgroup"
)

// Fetched is one photo downloaded for a report. Err is set when the
// download or decode failed; report assemblers fall back on it.
type Fetched struct {
	URL         string
	Data        []byte
	ContentType string
	Width       int
	Height      int
	Err         error
}

func (f Fetched) OK() bool {
	return f.Err == nil && len(f.Data) > 0
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// ErrFetchNotAllowed is returned for photo URLs outside the allowed
// prefixes, redirects included.
var ErrFetchNotAllowed = errors.New("photo url not allowed")

// HTTPFetcher only downloads URLs on the scheme and host of one of Allowed
// and under its path, so report requests cannot make the server reach
// arbitrary hosts. With no prefixes every fetch is refused.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
	Allowed  []string
}

func NewHTTPFetcher(allowed ...string) *HTTPFetcher {
	h := &HTTPFetcher{MaxBytes: 4 * DefaultMaxBytes}
	for _, prefix := range allowed {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			h.Allowed = append(h.Allowed, prefix)
		}
	}

	h.Client = &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return h.check(req.URL.String())
		},
	}
	return h
}

func (h *HTTPFetcher) check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrFetchNotAllowed, rawURL)
	}

	for _, prefix := range h.Allowed {
		p, err := url.Parse(prefix)
		if err != nil {
			continue
		}
		if u.Scheme == p.Scheme && u.Host == p.Host && strings.HasPrefix(u.Path, p.Path) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrFetchNotAllowed, rawURL)
}

func (h *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := h.check(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("photo fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, h.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read photo: %w", err)
	}
	return data, nil
}

// Prefetch downloads every distinct url with at most limit requests in
// flight. Failures are recorded per url and never cancel the others. The
// returned slice follows the input order with duplicates removed.
func Prefetch(ctx context.Context, fetcher Fetcher, urls []string, limit int) []Fetched {
	if limit < 1 {
		limit = 1
	}

	seen := make(map[string]bool, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		unique = append(unique, u)
	}

	out := make([]Fetched, len(unique))

	var g errgroup.Group
	g.SetLimit(limit)

	for i, u := range unique {
		g.Go(func() error {
			out[i] = fetchOne(ctx, fetcher, u)
			return nil
		})
	}

	_ = g.Wait()
	return out
}

func fetchOne(ctx context.Context, fetcher Fetcher, rawURL string) Fetched {
	data, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return Fetched{URL: rawURL, Err: err}
	}

	w, h, err := imaging.Dimensions(data)
	if err != nil {
		return Fetched{URL: rawURL, Err: fmt.Errorf("%w: %v", imaging.ErrImageDecode, err)}
	}

	return Fetched{
		URL:         rawURL,
		Data:        data,
		ContentType: imaging.Sniff(data),
		Width:       w,
		Height:      h,
	}
}

func Index(fetched []Fetched) map[string]Fetched {
	m := make(map[string]Fetched, len(fetched))
	for _, f := range fetched {
		m[f.URL] = f
	}
	return m
}
