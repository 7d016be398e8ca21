package assetproxy

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ttlFromQuery reads the ttl parameter in seconds, clamped to maxTTLSeconds.
func ttlFromQuery(r *http.Request) (time.Duration, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("ttl"))
	if raw == "" {
		return defaultTTLSeconds * time.Second, true
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(min(seconds, maxTTLSeconds)) * time.Second, true
}

func (s *Server) handleGetPresign(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimLeft(strings.TrimSpace(r.URL.Query().Get("key")), "/")
	if key == "" {
		http.Error(w, "missing key query parameter", http.StatusBadRequest)
		return
	}
	ttl, ok := ttlFromQuery(r)
	if !ok {
		http.Error(w, "invalid ttl", http.StatusBadRequest)
		return
	}

	signed, err := s.objects.PresignGet(r.Context(), s.config.Bucket, key, ttl)
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("presign")
		http.Error(w, "presign failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"url":        signed,
		"expires_in": int(ttl.Seconds()),
	})
}
