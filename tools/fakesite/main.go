// Command fakesite serves a small fake episode site for trying anidl end to
// end without a real source. Every show has the same number of released
// episodes and can be planned with the direct, page or rss service:
//
//	direct: http://localhost:8090/media/<show>-{ep2}.mkv
//	page:   http://localhost:8090/shows/<show>/
//	rss:    http://localhost:8090/shows/<show>/feed.rss
package main

import (
	"bytes"
	"flag"
	"fmt"
	"html/template"
	"log"
	"math/rand"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

var mediaName = regexp.MustCompile(`^(.+)-(\d+)\.mkv$`)

type site struct {
	released int
	payload  []byte
	started  time.Time
}

var listingPage = template.Must(template.New("listing").Parse(`<!doctype html>
<html><head><title>{{.Show}}</title></head>
<body>
<h1>{{.Show}}</h1>
<ul>
{{range .Episodes}}<li><a class="episode" href="ep{{.}}">Episode {{.}}</a></li>
{{end}}</ul>
</body></html>
`))

var episodePage = template.Must(template.New("episode").Parse(`<!doctype html>
<html><head><title>{{.Show}} episode {{.Episode}}</title></head>
<body>
<p>Mirror list</p>
<a href="/">Home</a>
{{if .TextOnly}}<a href="{{.Media}}">Download this episode</a>{{else}}<a id="download" href="{{.Media}}">Get</a>{{end}}
</body></html>
`))

func main() {
	addr := flag.String("addr", ":8090", "Listen address")
	released := flag.Int("episodes", 3, "Number of released episodes per show")
	size := flag.Int("size", 4<<20, "Payload size in bytes")
	flag.Parse()

	payload := make([]byte, *size)
	rand.New(rand.NewSource(1)).Read(payload)
	s := &site{released: *released, payload: payload, started: time.Now()}

	r := mux.NewRouter()
	r.HandleFunc("/shows/{show}/", s.listing).Methods(http.MethodGet)
	r.HandleFunc("/shows/{show}/feed.rss", s.feed).Methods(http.MethodGet)
	r.HandleFunc("/shows/{show}/ep{episode:[0-9]+}", s.episode).Methods(http.MethodGet)
	r.HandleFunc("/media/{file}", s.media).Methods(http.MethodGet, http.MethodHead)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			log.Printf("%s %s", req.Method, req.URL.String())
			next.ServeHTTP(w, req)
		})
	})

	fmt.Printf("Fake episode site starting on %s with %d episodes per show\n", *addr, *released)
	log.Fatal(http.ListenAndServe(*addr, r))
}

func (s *site) episodes() []int {
	out := make([]int, 0, s.released)
	for i := 1; i <= s.released; i++ {
		out = append(out, i)
	}
	return out
}

func (s *site) listing(w http.ResponseWriter, r *http.Request) {
	show := mux.Vars(r)["show"]
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = listingPage.Execute(w, map[string]interface{}{"Show": show, "Episodes": s.episodes()})
}

// episode alternates between an id-tagged download link and a plain
// "Download" text link so both lookups in the page planner get exercised.
func (s *site) episode(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ep, _ := strconv.Atoi(vars["episode"])
	if ep < 1 || ep > s.released {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = episodePage.Execute(w, map[string]interface{}{
		"Show":     vars["show"],
		"Episode":  ep,
		"Media":    fmt.Sprintf("/media/%s-%02d.mkv", vars["show"], ep),
		"TextOnly": ep%2 == 0,
	})
}

func (s *site) feed(w http.ResponseWriter, r *http.Request) {
	show := mux.Vars(r)["show"]
	base := "http://" + r.Host
	var items []string
	for _, ep := range s.episodes() {
		published := s.started.Add(-time.Duration(s.released-ep) * 24 * time.Hour)
		for i, quality := range []string{"720p", "1080p", "1080p HEVC"} {
			title := fmt.Sprintf("[Fake] %s - %02d [%s]", show, ep, quality)
			link := fmt.Sprintf("%s/media/%s-%02d.mkv", base, show, ep)
			items = append(items, itemXML(title, link, published, 10*(i+1)))
		}
	}
	w.Header().Set("Content-Type", "application/rss+xml")
	fmt.Fprintf(w, `<rss version="2.0" xmlns:torznab="http://torznab.com/schemas/2015/feed"><channel><title>%s</title>%s</channel></rss>`,
		template.HTMLEscapeString(show), strings.Join(items, "\n"))
}

func itemXML(title, link string, published time.Time, seeders int) string {
	return fmt.Sprintf(`
    <item>
      <title>%s</title>
      <link>%s</link>
      <guid>%s</guid>
      <pubDate>%s</pubDate>
      <enclosure url="%s" type="video/x-matroska"/>
      <torznab:attr name="seeders" value="%d"/>
    </item>`, template.HTMLEscapeString(title), link, link, published.Format(time.RFC1123Z), link, seeders)
}

func (s *site) media(w http.ResponseWriter, r *http.Request) {
	m := mediaName.FindStringSubmatch(mux.Vars(r)["file"])
	if m == nil {
		http.NotFound(w, r)
		return
	}
	ep, _ := strconv.Atoi(m[2])
	if ep < 1 || ep > s.released {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "video/x-matroska")
	http.ServeContent(w, r, m[0], s.started, bytes.NewReader(s.payload))
}
