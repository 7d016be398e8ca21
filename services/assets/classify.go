package assets

import (
	"slices"
	"strings"
)

// Classifier normalizes, classifies and de-duplicates demo assets.
type Classifier struct {
	cfg Config
}

// New returns a Classifier for cfg with defaults applied.
func New(cfg Config) *Classifier {
	return &Classifier{cfg: cfg.withDefaults()}
}

// Classify runs the default classifier.
func Classify(records []Record, previewCSV string) []DisplayAsset {
	return New(Config{}).Classify(records, previewCSV)
}

// seen tracks both key spaces across the two inputs.
type seen struct {
	pre  map[string]struct{}
	post map[string]struct{}
}

func (s *seen) hit(pre, post string) bool {
	for _, k := range []string{pre, post} {
		if _, ok := s.pre[k]; ok {
			return true
		}
		if _, ok := s.post[k]; ok {
			return true
		}
	}
	return false
}

func (s *seen) add(pre, post string) {
	s.pre[pre] = struct{}{}
	s.post[post] = struct{}{}
}

// Classify collapses records and the comma-separated preview URL string into one sequence:
// record videos, preview videos, record images, preview images. Records are ordered by
// name case-insensitively; previews keep string order. Each logical URL appears once.
func (c *Classifier) Classify(records []Record, previewCSV string) []DisplayAsset {
	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b Record) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})

	keys := &seen{pre: map[string]struct{}{}, post: map[string]struct{}{}}
	var assetVideos, assetImages, previewVideos, previewImages []DisplayAsset

	for _, rec := range sorted {
		raw := rec.URL()
		if raw == "" {
			continue
		}

		var resolved, pre, post string
		if rec.Local {
			resolved = raw
			pre, post = localKey(raw), localKey(raw)
		} else {
			resolved = c.Normalize(raw)
			pre, post = c.Key(raw), c.Key(resolved)
		}
		if keys.hit(pre, post) {
			continue
		}
		keys.add(pre, post)

		item := DisplayAsset{URL: resolved, Source: SourceAsset, Name: rec.Name, Local: rec.Local}
		if c.recordIsVideo(rec, raw, resolved) {
			item.Kind = KindVideo
			assetVideos = append(assetVideos, item)
		} else {
			item.Kind = KindImage
			assetImages = append(assetImages, item)
		}
	}

	for _, raw := range SplitPreviewURLs(previewCSV) {
		resolved := c.Normalize(raw)
		pre, post := c.Key(raw), c.Key(resolved)
		if keys.hit(pre, post) {
			continue
		}
		keys.add(pre, post)

		item := DisplayAsset{URL: resolved, Source: SourcePreview}
		if c.urlIsVideo(raw) || c.urlIsVideo(resolved) {
			item.Kind = KindVideo
			previewVideos = append(previewVideos, item)
		} else {
			item.Kind = KindImage
			previewImages = append(previewImages, item)
		}
	}

	out := make([]DisplayAsset, 0, len(assetVideos)+len(previewVideos)+len(assetImages)+len(previewImages))
	out = append(out, assetVideos...)
	out = append(out, previewVideos...)
	out = append(out, assetImages...)
	out = append(out, previewImages...)
	return out
}

func (c *Classifier) urlIsVideo(u string) bool {
	return IsHostedVideo(u) || hasVideoExtension(u)
}

func (c *Classifier) recordIsVideo(rec Record, raw, resolved string) bool {
	if c.urlIsVideo(raw) || c.urlIsVideo(resolved) {
		return true
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(rec.MediaType)), "video") {
		return true
	}
	return rec.Local && fileExtIsVideo(rec.FileName)
}

// SplitPreviewURLs splits the preview string on commas, trimming and dropping blanks.
func SplitPreviewURLs(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
