package planners

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"anidl/internal/series"
	"anidl/internal/utils"
)

// RSSItem mirrors <item> in RSS and Torznab feeds.
type RSSItem struct {
	Title     string        `xml:"title"`
	Link      string        `xml:"link"`
	GUID      string        `xml:"guid"`
	PubDate   string        `xml:"pubDate"`
	Enclosure RSSEnclosure  `xml:"enclosure"`
	Attrs     []TorznabAttr `xml:"attr"`
}

type RSSEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

type TorznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type RSSFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []RSSItem `xml:"item"`
	} `xml:"channel"`
}

// downloadURL prefers the enclosure, then the link.
func (i RSSItem) downloadURL() string {
	if u := strings.TrimSpace(i.Enclosure.URL); u != "" {
		return u
	}
	return strings.TrimSpace(i.Link)
}

func (i RSSItem) intAttr(name string) int {
	for _, a := range i.Attrs {
		if a.Name == name {
			v, _ := strconv.Atoi(a.Value)
			return v
		}
	}
	return 0
}

func (i RSSItem) published() time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
		if t, err := time.Parse(layout, strings.TrimSpace(i.PubDate)); err == nil {
			return t
		}
	}
	return time.Time{}
}

// RSSPlanner picks the best feed item for the next episode.
type RSSPlanner struct {
	client   *httpClient
	selector *Selector
	logger   *utils.Logger
}

func (p *RSSPlanner) fetch(ctx context.Context, url string) ([]Release, error) {
	body, err := p.client.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var feed RSSFeed
	decoder := xml.NewDecoder(body)
	decoder.CharsetReader = charset.NewReaderLabel
	if err := decoder.Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to decode feed: %w", err)
	}

	releases := make([]Release, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		releases = append(releases, Release{
			Title:     item.Title,
			URL:       item.downloadURL(),
			Published: item.published(),
			Seeders:   item.intAttr("seeders"),
		})
	}
	return releases, nil
}

func (p *RSSPlanner) PlanTask(ctx context.Context, desc series.Descriptor) (series.Task, error) {
	remote, final, err := target(desc)
	if err != nil {
		return series.Task{}, err
	}
	releases, err := p.fetch(ctx, desc.SeriesPageURL)
	if err != nil {
		return series.Task{}, err
	}
	p.logger.Debug("Feed for", desc.Name, "has", len(releases), "items")

	best, ok := p.selector.Best(releases, remote)
	if !ok {
		return series.Skip(desc, fmt.Sprintf("episode %d not in feed", remote)), nil
	}
	return processTask(desc, best.URL, remote, final), nil
}
