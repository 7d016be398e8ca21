package assets

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	gos3 "agentdock/pkg/s3"
)

var (
	youtubePattern = regexp.MustCompile(`(?i)^(https?:)?//(www\.|m\.)?(youtube\.com/(watch|embed/|shorts/|live/)|youtu\.be/)`)
	vimeoPattern   = regexp.MustCompile(`(?i)^(https?:)?//(www\.|player\.)?vimeo\.com/`)
	videoExtension = regexp.MustCompile(`(?i)\.(mp4|webm|mov|m4v|avi|mkv|ogv|ogg|mpeg|mpg)($|[?#&])`)
)

// IsHostedVideo reports whether u points at a recognized video hosting page.
func IsHostedVideo(u string) bool {
	u = strings.TrimSpace(u)
	return youtubePattern.MatchString(u) || vimeoPattern.MatchString(u)
}

// hasVideoExtension checks the raw and percent-decoded forms, so an encoded key sitting
// inside a proxy query string is still recognized.
func hasVideoExtension(u string) bool {
	if videoExtension.MatchString(u) {
		return true
	}
	if decoded, err := url.QueryUnescape(u); err == nil && decoded != u {
		return videoExtension.MatchString(decoded)
	}
	return false
}

func isPathLike(raw string) bool {
	if raw == "" || strings.HasPrefix(raw, "//") {
		return false
	}
	if strings.Contains(raw, "://") {
		return false
	}
	lower := strings.ToLower(raw)
	return !strings.HasPrefix(lower, "blob:") && !strings.HasPrefix(lower, "data:")
}

// proxied reports whether raw already targets the proxy and returns the wrapped URL.
func (c *Classifier) proxied(raw string) (string, bool) {
	candidate := raw
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Path == c.cfg.ProxyPath {
		candidate = u.Path + "?" + u.RawQuery
	}
	prefix := c.cfg.ProxyPath + "?"
	if !strings.HasPrefix(candidate, prefix) {
		return "", false
	}
	q, err := url.ParseQuery(strings.TrimPrefix(candidate, prefix))
	if err != nil {
		return "", false
	}
	inner := q.Get("url")
	return inner, inner != ""
}

func (c *Classifier) proxy(storageURL string) string {
	return c.cfg.ProxyPath + "?url=" + url.QueryEscape(storageURL)
}

func (c *Classifier) isStorage(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	return gos3.IsStorageHost(u.Host, c.cfg.StorageHosts...)
}

func (c *Classifier) expand(raw string) (string, bool) {
	if c.cfg.StorageBaseURL == "" || !isPathLike(raw) {
		return "", false
	}
	return gos3.ObjectURL(c.cfg.StorageBaseURL, raw), true
}

// Normalize rewrites storage URLs (and path-like keys, once expanded) to route through the
// proxy. Hosted videos, already-proxied URLs and other absolute URLs pass through.
func (c *Classifier) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if _, ok := c.proxied(raw); ok {
		return raw
	}
	if IsHostedVideo(raw) {
		return raw
	}
	if full, ok := c.expand(raw); ok {
		return c.proxy(full)
	}
	if strings.HasPrefix(raw, "//") && c.isStorage("https:"+raw) {
		return c.proxy("https:" + raw)
	}
	if c.isStorage(raw) {
		return c.proxy(raw)
	}
	return raw
}

// Key reduces raw to its dedup key according to the configured KeyMode. Proxy wrappers are
// unwrapped and path-like values expanded first, so every spelling of one object agrees.
func (c *Classifier) Key(raw string) string {
	s := strings.TrimSpace(raw)
	storage := false
	for i := 0; i < 3; i++ {
		inner, ok := c.proxied(s)
		if !ok {
			break
		}
		s, storage = inner, true
	}
	if full, ok := c.expand(s); ok {
		s, storage = full, true
	}
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.ToLower(s)
	}
	if id, ok := youtubeID(u); ok {
		return "youtube:" + id
	}
	storage = storage || c.isStorage(s)

	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	p := u.EscapedPath()
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	key := host + p

	// Only storage objects shed their query in canonical mode; elsewhere it names the resource.
	if u.RawQuery != "" && (c.cfg.KeyMode == KeyExact || !storage) {
		key += "?" + u.RawQuery
	}
	return key
}

// youtubeID extracts the video id from watch, embed, shorts, live and youtu.be URLs.
func youtubeID(u *url.URL) (string, bool) {
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(strings.TrimPrefix(host, "www."), "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch host {
	case "youtu.be":
		if segments[0] != "" {
			return segments[0], true
		}
	case "youtube.com":
		switch segments[0] {
		case "watch":
			if v := u.Query().Get("v"); v != "" {
				return v, true
			}
		case "embed", "shorts", "live":
			if len(segments) > 1 && segments[1] != "" {
				return segments[1], true
			}
		}
	}
	return "", false
}

func localKey(raw string) string {
	return "local:" + strings.ToLower(strings.TrimSpace(raw))
}

func fileExtIsVideo(name string) bool {
	return videoExtension.MatchString(strings.ToLower(path.Base(name)))
}
