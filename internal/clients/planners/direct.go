package planners

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"anidl/internal/series"
	"anidl/internal/utils"
)

// DirectPlanner expands an episode URL template and probes it. The template
// may contain {ep}, {ep2} or {ep3} for the plain, two- and three-digit
// episode number.
type DirectPlanner struct {
	client *httpClient
	logger *utils.Logger
}

func ExpandTemplate(template string, ep int) string {
	r := strings.NewReplacer(
		"{ep}", fmt.Sprintf("%d", ep),
		"{ep2}", fmt.Sprintf("%02d", ep),
		"{ep3}", fmt.Sprintf("%03d", ep),
	)
	return r.Replace(template)
}

func (p *DirectPlanner) PlanTask(ctx context.Context, desc series.Descriptor) (series.Task, error) {
	if !strings.Contains(desc.SeriesPageURL, "{ep") {
		return series.Task{}, fmt.Errorf("url template has no episode placeholder")
	}
	remote, final, err := target(desc)
	if err != nil {
		return series.Task{}, err
	}
	url := ExpandTemplate(desc.SeriesPageURL, remote)

	status, err := p.probe(ctx, url)
	if err != nil {
		return series.Task{}, err
	}
	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return series.Skip(desc, fmt.Sprintf("episode %d not released yet", remote)), nil
	case status >= 200 && status < 300:
		p.logger.Debug("Direct probe ok for", desc.Name, url)
		return processTask(desc, url, remote, final), nil
	default:
		return series.Task{}, fmt.Errorf("probe %s: status %d", url, status)
	}
}

// probe sends HEAD and falls back to a one-byte ranged GET for servers that
// reject HEAD.
func (p *DirectPlanner) probe(ctx context.Context, url string) (int, error) {
	resp, err := p.client.do(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed && resp.StatusCode != http.StatusNotImplemented {
		return resp.StatusCode, nil
	}

	resp, err = p.client.do(ctx, http.MethodGet, url, http.Header{"Range": []string{"bytes=0-0"}})
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	return resp.StatusCode, nil
}
