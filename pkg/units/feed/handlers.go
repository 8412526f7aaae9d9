package feed

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type channelInfo struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	channels := s.Channels()
	infos := make([]channelInfo, 0, len(channels))
	for _, c := range channels {
		infos = append(infos, channelInfo{Name: c.Name, Unit: c.Display.String(), Scale: c.Display.Scale()})
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	channel := query.Get("channel")
	if channel == "" {
		http.Error(w, "Missing 'channel' parameter", http.StatusBadRequest)
		return
	}

	limit := defaultHistoryLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid 'limit' parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	readings, err := s.History(channel, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.clientsMutex.RLock()
	clients := len(s.clients)
	s.clientsMutex.RUnlock()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversions": s.conversions.GetStats(),
		"http":        s.httpMetrics.GetStats(),
		"clients":     clients,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(map[string]interface{}{
		"status": "ok",
		"data":   data,
	})
	if err != nil {
		s.logger.WithError(err).Error("encode response")
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.WithError(err).Debug("write response")
	}
}
