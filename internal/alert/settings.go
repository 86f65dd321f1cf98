package alert

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/jgoulah/meterwatch/pkg/models"
)

// SettingsKey is the settings row holding the alert thresholds
const SettingsKey = "alertSettings"

// KV is the key-value storage the settings are persisted in
type KV interface {
	GetSetting(key string) (string, bool, error)
	PutSetting(key, value string) error
}

// SettingsStore loads and saves alert thresholds as one JSON blob
type SettingsStore struct {
	kv     KV
	logger *slog.Logger

	mu      sync.RWMutex
	current models.AlertThresholds
}

// NewSettingsStore creates a store over kv, starting from the defaults
func NewSettingsStore(kv KV, logger *slog.Logger) *SettingsStore {
	return &SettingsStore{kv: kv, logger: logger, current: models.DefaultThresholds()}
}

// Load reads the stored thresholds. Missing or malformed data yields the
// defaults; only storage failures are returned as errors.
func (s *SettingsStore) Load() (models.AlertThresholds, error) {
	raw, ok, err := s.kv.GetSetting(SettingsKey)
	if err != nil {
		return models.DefaultThresholds(), err
	}

	th := models.DefaultThresholds()
	if ok {
		th = Parse(raw)
	}

	s.mu.Lock()
	s.current = th
	s.mu.Unlock()
	return th, nil
}

// Save persists th and makes it current. Zero values are replaced by defaults.
func (s *SettingsStore) Save(th models.AlertThresholds) error {
	th = withDefaults(th)
	data, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("encoding alert settings: %w", err)
	}
	if err := s.kv.PutSetting(SettingsKey, string(data)); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = th
	s.mu.Unlock()
	s.logger.Info("alert_settings_saved", "balance", th.Balance, "power", th.Power, "daily", th.DailyUsage)
	return nil
}

// Thresholds returns the thresholds last loaded or saved
func (s *SettingsStore) Thresholds() models.AlertThresholds {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Parse decodes a settings blob. Each field may be a number or a numeric
// string; anything else, and zero, falls back to its default.
func Parse(raw string) models.AlertThresholds {
	th, err := Apply(models.DefaultThresholds(), []byte(raw))
	if err != nil {
		return models.DefaultThresholds()
	}
	return withDefaults(th)
}

// Apply overlays the fields present in raw onto base. Fields left out keep
// their base value; present fields that are zero or not numeric fall back to
// their default. Only a body that is not a JSON object is an error.
func Apply(base models.AlertThresholds, raw []byte) (models.AlertThresholds, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return base, fmt.Errorf("decoding alert settings: %w", err)
	}

	def := models.DefaultThresholds()
	overlay(fields, "balanceAlert", &base.Balance, def.Balance)
	overlay(fields, "powerAlert", &base.Power, def.Power)
	overlay(fields, "dailyAlert", &base.DailyUsage, def.DailyUsage)
	return base, nil
}

func overlay(fields map[string]json.RawMessage, key string, dst *float64, def float64) {
	raw, ok := fields[key]
	if !ok {
		return
	}
	if f := lenientFloat(raw); f != 0 {
		*dst = f
		return
	}
	*dst = def
}

func lenientFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func withDefaults(th models.AlertThresholds) models.AlertThresholds {
	def := models.DefaultThresholds()
	if th.Balance == 0 {
		th.Balance = def.Balance
	}
	if th.Power == 0 {
		th.Power = def.Power
	}
	if th.DailyUsage == 0 {
		th.DailyUsage = def.DailyUsage
	}
	return th
}
