package planners

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"anidl/internal/utils"
)

// Release is one candidate download found in a feed.
type Release struct {
	Title     string
	URL       string
	Published time.Time
	Seeders   int
	Score     int
}

// Selector filters and ranks releases for a single episode.
type Selector struct {
	reject []*regexp.Regexp
	prefs  []string
	logger *utils.Logger
}

func NewSelector(rejectPatterns, qualityPreferences []string, logger *utils.Logger) *Selector {
	s := &Selector{logger: logger}
	for _, pattern := range rejectPatterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			logger.Error("Invalid reject pattern:", pattern, "Error:", err)
			continue
		}
		s.reject = append(s.reject, re)
	}
	for _, pref := range qualityPreferences {
		if pref = strings.ToLower(strings.TrimSpace(pref)); pref != "" {
			s.prefs = append(s.prefs, pref)
		}
	}
	return s
}

// episodePatterns recognises the common ways a release title names an
// episode: S01E05, Ep 05, Episode 5, _Ep_05 and the fansub " - 05 " form.
func episodePatterns(ep int) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(fmt.Sprintf(`(?i)s\d{1,2}e0*%d(?:\D|$)`, ep)),
		regexp.MustCompile(fmt.Sprintf(`(?i)(?:^|[^a-z])ep(?:isode)?[\s._-]*0*%d(?:\D|$)`, ep)),
		regexp.MustCompile(fmt.Sprintf(`\s-\s0*%d(?:[^\d]|$)`, ep)),
	}
}

func MatchesEpisode(title string, ep int) bool {
	for _, re := range episodePatterns(ep) {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

func (s *Selector) rejected(title string) bool {
	for _, re := range s.reject {
		if re.MatchString(title) {
			s.logger.Debug("Rejected release by pattern", re.String()+":", title)
			return true
		}
	}
	return false
}

// score ranks by the position of the first matching quality preference.
func (s *Selector) score(title string) int {
	lower := strings.ToLower(title)
	for i, pref := range s.prefs {
		if strings.Contains(lower, pref) {
			return (len(s.prefs) - i) * 10
		}
	}
	return 0
}

// Rank returns the releases for ep that survive the reject patterns, best
// first. Ties go to more seeders, then to the newest release.
func (s *Selector) Rank(releases []Release, ep int) []Release {
	var out []Release
	for _, r := range releases {
		if r.URL == "" || !MatchesEpisode(r.Title, ep) || s.rejected(r.Title) {
			continue
		}
		r.Score = s.score(r.Title)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Seeders != out[j].Seeders {
			return out[i].Seeders > out[j].Seeders
		}
		return out[i].Published.After(out[j].Published)
	})
	return out
}

func (s *Selector) Best(releases []Release, ep int) (Release, bool) {
	ranked := s.Rank(releases, ep)
	if len(ranked) == 0 {
		return Release{}, false
	}
	best := ranked[0]
	s.logger.Debug("Best release:", best.Title, "Score:", best.Score)
	for i := 1; i < len(ranked) && i < 3; i++ {
		s.logger.Debug("Runner-up:", ranked[i].Title, "Score:", ranked[i].Score)
	}
	return best, true
}
