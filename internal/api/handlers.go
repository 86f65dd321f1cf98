package api

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"slices"

	"github.com/gorilla/mux"

	"github.com/jgoulah/meterwatch/internal/alert"
	"github.com/jgoulah/meterwatch/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.opts.Logger.Error("request_failed", "path", r.URL.Path, "error", err)
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// meterData returns the latest stored reading, falling back to the snapshot file
func (s *Server) meterData(w http.ResponseWriter, r *http.Request) {
	latest, err := s.opts.DB.LatestReading()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if latest != nil {
		writeJSON(w, http.StatusOK, latest)
		return
	}

	if data, err := os.ReadFile(s.opts.SnapshotFile); err == nil && json.Valid(data) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
		return
	}

	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"error":   "no data",
		"message": "no meter reading has been collected yet",
	})
}

func (s *Server) meterDataFile(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.opts.SnapshotFile)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if s.opts.Refresher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "message": "scraping is not configured"})
		return
	}

	reading, err := s.opts.Refresher.Collect(r.Context())
	if err != nil {
		s.opts.Logger.Error("refresh_failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "meter data refreshed", "data": reading})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	latest, err := s.opts.DB.LatestReading()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	records, err := s.opts.DB.CountReadings()
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	hourly, err := s.opts.DB.CountBuckets(models.Hourly)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}

	_, statErr := os.Stat(s.opts.SnapshotFile)
	resp := map[string]any{
		"server_time":        s.now().Format("2006-01-02T15:04:05.000000"),
		"data_available":     latest != nil,
		"data_file_exists":   statErr == nil,
		"historical_records": records,
		"hourly_records":     hourly,
	}
	if latest != nil {
		resp["last_update"] = latest.UpdateTime
		resp["meter_name"] = latest.Name
	}
	writeJSON(w, http.StatusOK, resp)
}

// historicalData returns the last 24 readings, oldest first
func (s *Server) historicalData(w http.ResponseWriter, r *http.Request) {
	readings, err := s.opts.DB.LatestReadings(24)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	slices.Reverse(readings)
	if readings == nil {
		readings = []models.Reading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": readings, "count": len(readings)})
}

func (s *Server) usageBuckets(w http.ResponseWriter, r *http.Request) {
	g, err := models.ParseGranularity(mux.Vars(r)["granularity"])
	if err != nil {
		s.fail(w, r, http.StatusBadRequest, err)
		return
	}

	buckets, err := s.opts.Aggregator.Buckets(g)
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": buckets, "count": len(buckets)})
}

func (s *Server) usageSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.opts.Aggregator.Summary(s.now())
	if err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": summary})
}

func (s *Server) dashboardView(w http.ResponseWriter, r *http.Request) {
	if s.opts.Board == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "dashboard is not running"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Board.View())
}

func (s *Server) selectGranularity(w http.ResponseWriter, r *http.Request) {
	if s.opts.Board == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "dashboard is not running"})
		return
	}
	g, err := models.ParseGranularity(mux.Vars(r)["granularity"])
	if err != nil || g == models.Monthly {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "unsupported granularity"})
		return
	}

	res := s.opts.Board.Select(r.Context(), g)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tier": res.Tier, "data": res.Series})
}

func (s *Server) getAlertSettings(w http.ResponseWriter, r *http.Request) {
	if s.opts.Settings == nil {
		writeJSON(w, http.StatusOK, models.DefaultThresholds())
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Settings.Thresholds())
}

func (s *Server) putAlertSettings(w http.ResponseWriter, r *http.Request) {
	if s.opts.Settings == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "settings are not available"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "reading settings: " + err.Error()})
		return
	}
	th, err := alert.Apply(s.opts.Settings.Thresholds(), body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid settings: " + err.Error()})
		return
	}
	if err := s.opts.Settings.Save(th); err != nil {
		s.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.opts.Settings.Thresholds()})
}
