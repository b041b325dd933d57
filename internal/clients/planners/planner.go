package planners

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"anidl/internal/config"
	"anidl/internal/episode"
	"anidl/internal/series"
	"anidl/internal/utils"
)

// Planner inspects a series' remote source and proposes the next task.
// Ordinary "nothing new" conditions return a skip task, not an error.
type Planner interface {
	PlanTask(ctx context.Context, desc series.Descriptor) (series.Task, error)
}

// PlannerFunc adapts a function to Planner.
type PlannerFunc func(ctx context.Context, desc series.Descriptor) (series.Task, error)

func (f PlannerFunc) PlanTask(ctx context.Context, desc series.Descriptor) (series.Task, error) {
	return f(ctx, desc)
}

// Registry maps a descriptor's service field to a planner.
type Registry struct {
	mu       sync.RWMutex
	planners map[string]Planner
}

func NewRegistry() *Registry {
	return &Registry{planners: make(map[string]Planner)}
}

func (r *Registry) Register(service string, p Planner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.planners[service] = p
}

func (r *Registry) Lookup(service string) (Planner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.planners[service]
	return p, ok
}

func (r *Registry) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.planners))
	for name := range r.planners {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Default registers the built-in planners.
func Default(cfg config.Config, logger *utils.Logger) *Registry {
	client := newHTTPClient(cfg.Planning.UserAgent)
	selector := NewSelector(cfg.Planning.RejectPatterns, cfg.Planning.QualityPreferences, logger)

	reg := NewRegistry()
	reg.Register("direct", &DirectPlanner{client: client, logger: logger})
	reg.Register("rss", &RSSPlanner{client: client, selector: selector, logger: logger})
	page, err := NewPagePlanner(client, cfg.Planning.EpisodeSelector, cfg.Planning.DownloadSelector, logger)
	if err != nil {
		logger.Error("Page planner disabled:", err)
		return reg
	}
	reg.Register("page", page)
	return reg
}

// target resolves the remote and final episode for desc from its directory.
func target(desc series.Descriptor) (remote, final int, err error) {
	next, err := episode.NextLocal(desc.Path)
	if err != nil {
		return 0, 0, err
	}
	remote, final = episode.Resolve(next, desc.PassedEpisodes, desc.Continuation)
	return remote, final, nil
}

func processTask(desc series.Descriptor, url string, remote, final int) series.Task {
	return series.Task{
		Series:        desc,
		Action:        series.ActionProcess,
		Reason:        fmt.Sprintf("episode %d available", remote),
		DownloadURL:   url,
		RemoteEpisode: remote,
		FinalEpisode:  final,
	}
}

// httpClient sets the configured user agent on every request. Timeouts come
// from the caller's context.
type httpClient struct {
	client    *http.Client
	userAgent string
}

func newHTTPClient(userAgent string) *httpClient {
	return &httpClient{client: &http.Client{}, userAgent: userAgent}
}

func (c *httpClient) do(ctx context.Context, method, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.client.Do(req)
}

// get fetches url and returns the body of a 200 response.
func (c *httpClient) get(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}
