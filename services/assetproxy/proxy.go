package assetproxy

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	gos3 "agentdock/pkg/s3"
)

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("url"))
	if raw == "" {
		http.Error(w, "missing url query parameter", http.StatusBadRequest)
		return
	}

	bucket, key, err := gos3.ParseObjectURL(raw, s.config.AllowedHosts...)
	switch {
	case errors.Is(err, gos3.ErrNotStorageURL):
		http.Error(w, "url is not served by this proxy", http.StatusForbidden)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if bucket != s.config.Bucket {
		http.Error(w, "bucket is not served by this proxy", http.StatusForbidden)
		return
	}

	obj, err := s.objects.GetObject(r.Context(), bucket, key, r.Header.Get("Range"))
	if err != nil {
		if gos3.IsNotFound(err) {
			http.Error(w, "asset not found", http.StatusNotFound)
			return
		}
		s.log.Warn().Err(err).Str("key", key).Msg("fetch asset")
		http.Error(w, "fetch asset failed", http.StatusBadGateway)
		return
	}
	defer obj.Body.Close()

	h := w.Header()
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "private, max-age=300")
	if obj.ContentLength > 0 {
		h.Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	if obj.ETag != "" {
		h.Set("ETag", obj.ETag)
	}
	if !obj.LastModified.IsZero() {
		h.Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}

	status := http.StatusOK
	if obj.ContentRange != "" {
		h.Set("Content-Range", obj.ContentRange)
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("asset stream interrupted")
	}
}
