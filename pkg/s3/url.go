package s3

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotStorageURL is returned when a URL does not address an object in a known bucket host.
var ErrNotStorageURL = errors.New("not a storage url")

const amazonSuffix = ".amazonaws.com"

// IsStorageHost reports whether host is an AWS S3 endpoint or one of the extra
// (typically self-hosted, path-style) storage hosts.
func IsStorageHost(host string, extra ...string) bool {
	host = strings.ToLower(hostOnly(host))
	if host == "" {
		return false
	}
	for _, h := range extra {
		if strings.EqualFold(hostOnly(strings.TrimSpace(h)), host) {
			return true
		}
	}
	if !strings.HasSuffix(host, amazonSuffix) {
		return false
	}
	labels := strings.Split(strings.TrimSuffix(host, amazonSuffix), ".")
	for _, label := range labels {
		if label == "s3" || strings.HasPrefix(label, "s3-") {
			return true
		}
	}
	return false
}

// ParseObjectURL extracts bucket and key from a virtual-hosted or path-style storage URL.
// Hosts in pathStyle are always treated as path-style endpoints.
func ParseObjectURL(raw string, pathStyle ...string) (bucket, key string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("parse storage url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", ErrNotStorageURL
	}
	if !IsStorageHost(u.Host, pathStyle...) {
		return "", "", ErrNotStorageURL
	}

	host := strings.ToLower(hostOnly(u.Host))
	path := strings.TrimPrefix(u.EscapedPath(), "/")

	virtual := false
	if strings.HasSuffix(host, amazonSuffix) {
		first := strings.SplitN(host, ".", 2)[0]
		virtual = first != "s3" && !strings.HasPrefix(first, "s3-")
		if virtual {
			bucket = first
			if idx := strings.Index(host, ".s3"); idx > 0 {
				bucket = host[:idx]
			}
		}
	}

	if !virtual {
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] == "" {
			return "", "", fmt.Errorf("storage url %q has no bucket segment", raw)
		}
		bucket, path = parts[0], parts[1]
	}

	key, err = url.PathUnescape(path)
	if err != nil {
		return "", "", fmt.Errorf("decode object key: %w", err)
	}
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("storage url %q is missing bucket or key", raw)
	}
	return bucket, key, nil
}

// ObjectURL joins a storage base URL (https://bucket.s3.region.amazonaws.com) and a key.
func ObjectURL(base, key string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if base == "" {
		return key
	}
	return base + "/" + key
}

func hostOnly(host string) string {
	if idx := strings.LastIndex(host, ":"); idx > 0 && !strings.Contains(host[idx:], "]") {
		return host[:idx]
	}
	return host
}
