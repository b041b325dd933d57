package planners

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"anidl/internal/episode"
	"anidl/internal/series"
	"anidl/internal/utils"
)

var (
	firstNumber    = regexp.MustCompile(`\d+`)
	anchorSelector = cascadia.MustCompile("a[href]")
)

// CompileSelector compiles a CSS selector. An empty selector compiles to nil,
// which matches nothing.
func CompileSelector(raw string) (cascadia.Selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	sel, err := cascadia.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", raw, err)
	}
	return sel, nil
}

func matchAll(sel cascadia.Selector, root *html.Node) []*html.Node {
	if sel == nil {
		return nil
	}
	return sel.MatchAll(root)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// PagePlanner reads an HTML series page listing episode links and follows the
// matching one to its download anchor.
type PagePlanner struct {
	client   *httpClient
	episodes cascadia.Selector
	download cascadia.Selector
	logger   *utils.Logger
}

func NewPagePlanner(client *httpClient, episodeSelector, downloadSelector string, logger *utils.Logger) (*PagePlanner, error) {
	episodes, err := CompileSelector(episodeSelector)
	if err != nil {
		return nil, fmt.Errorf("episode selector: %w", err)
	}
	if episodes == nil {
		return nil, fmt.Errorf("episode selector is required")
	}
	download, err := CompileSelector(downloadSelector)
	if err != nil {
		return nil, fmt.Errorf("download selector: %w", err)
	}
	return &PagePlanner{client: client, episodes: episodes, download: download, logger: logger}, nil
}

func (p *PagePlanner) parse(ctx context.Context, pageURL string) (*html.Node, *url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid page url: %w", err)
	}
	body, err := p.client.get(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()
	doc, err := html.Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	return doc, base, nil
}

func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

func (p *PagePlanner) PlanTask(ctx context.Context, desc series.Descriptor) (series.Task, error) {
	remote, final, err := target(desc)
	if err != nil {
		return series.Task{}, err
	}
	doc, base, err := p.parse(ctx, desc.SeriesPageURL)
	if err != nil {
		return series.Task{}, err
	}

	links := matchAll(p.episodes, doc)
	if len(links) == 0 {
		return series.Skip(desc, "no episodes listed"), nil
	}
	var episodeURL string
	for _, link := range links {
		if n, ok := linkEpisode(link); !ok || n != remote {
			continue
		}
		if u, ok := resolveHref(base, attr(link, "href")); ok {
			episodeURL = u
			break
		}
	}
	if episodeURL == "" {
		return series.Skip(desc, fmt.Sprintf("episode %d not listed", remote)), nil
	}

	// Some listings link straight to the media file.
	if episode.IsMedia(episode.RemoteName(episodeURL)) {
		return processTask(desc, episodeURL, remote, final), nil
	}

	downloadURL, err := p.findDownload(ctx, episodeURL)
	if err != nil {
		return series.Task{}, err
	}
	p.logger.Debug("Page planner found", downloadURL, "for", desc.Name)
	return processTask(desc, downloadURL, remote, final), nil
}

// linkEpisode reads the episode number from data-episode-num, falling back
// to the first number in the link text.
func linkEpisode(link *html.Node) (int, bool) {
	raw := strings.TrimSpace(attr(link, "data-episode-num"))
	if raw == "" {
		raw = text(link)
	}
	m := firstNumber.FindString(raw)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	return n, err == nil
}

// findDownload returns the first anchor matching the download selector, or
// failing that the first anchor whose text mentions "download".
func (p *PagePlanner) findDownload(ctx context.Context, episodeURL string) (string, error) {
	doc, base, err := p.parse(ctx, episodeURL)
	if err != nil {
		return "", err
	}
	candidates := matchAll(p.download, doc)
	for _, n := range anchorSelector.MatchAll(doc) {
		if strings.Contains(strings.ToLower(text(n)), "download") {
			candidates = append(candidates, n)
		}
	}
	for _, n := range candidates {
		if u, ok := resolveHref(base, attr(n, "href")); ok {
			return u, nil
		}
	}
	return "", fmt.Errorf("no download link on %s", episodeURL)
}
