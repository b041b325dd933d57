package episode

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"anidl/internal/utils"
)

var (
	rootPattern   = regexp.MustCompile(`(?i)^(.*?)_Ep_`)
	suffixPattern = regexp.MustCompile(`(?i)(_Ep_.*)`)
	digitRun      = regexp.MustCompile(`\d+`)
)

const fallbackRoot = "Episode"

// RemoteName returns the last path segment of a download URL without its
// query string or fragment.
func RemoteName(remoteURL string) string {
	raw := remoteURL
	if u, err := url.Parse(remoteURL); err == nil && u.Path != "" {
		raw = u.Path
	} else {
		if i := strings.IndexAny(raw, "?#"); i >= 0 {
			raw = raw[:i]
		}
	}
	name := path.Base(raw)
	if name == "." || name == "/" {
		return ""
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}

// FinalFilename derives the on-disk filename for final. An `_Ep_` marker in
// the remote name keeps its structure with the first digit run rewritten to
// the two-digit final index; otherwise the name is synthesized as
// <root>_Ep_<nn><ext>. Applying it to its own output is a no-op.
func FinalFilename(remoteURL, root string, final int) string {
	name := RemoteName(remoteURL)
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	if strings.TrimSpace(root) == "" {
		if m := rootPattern.FindStringSubmatch(name); m != nil && m[1] != "" {
			root = m[1]
		} else if stem != "" {
			root = stem
		} else {
			root = fallbackRoot
		}
	}

	nn := fmt.Sprintf("%02d", final)
	if m := suffixPattern.FindStringSubmatch(name); m != nil {
		// Digits inside the extension (".mp4") never count as the marker.
		body := strings.TrimSuffix(m[1], ext)
		if loc := digitRun.FindStringIndex(body); loc != nil {
			suffix := body[:loc[0]] + nn + body[loc[1]:] + m[1][len(body):]
			return utils.SanitizeFilename(root + suffix)
		}
	}

	if ext == "" {
		ext = ".mp4"
	}
	return utils.SanitizeFilename(root + "_Ep_" + nn + ext)
}
