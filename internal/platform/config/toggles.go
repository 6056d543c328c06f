package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Property keys read from the toggles file.
const (
	KeyOutboundSchedulerEnabled = "outbound.scheduler.enabled"
	KeySchedulerEnabled         = "scheduler.enabled"
	KeyTransportEnabled         = "smpp.enabled"
)

// Toggles gates the periodic jobs. Implementations must fail closed:
// an unreadable source reports every feature as disabled.
type Toggles interface {
	OutboundSchedulingEnabled() bool
	SchedulerEnabled() bool
	TransportEnabled() bool
}

// NewToggles returns the toggle source for path. An empty path means there is
// no source at all, so every feature reports disabled.
func NewToggles(path string, logger *slog.Logger) Toggles {
	if strings.TrimSpace(path) == "" {
		logger.Warn("No toggles file configured; all jobs stay disabled")
		return StaticToggles{}
	}
	return NewPropertiesToggles(path, logger)
}

// PropertiesToggles reads a Java style .properties file on every call.
// Nothing is cached, so edits take effect on the next tick.
type PropertiesToggles struct {
	path   string
	logger *slog.Logger
}

func NewPropertiesToggles(path string, logger *slog.Logger) *PropertiesToggles {
	return &PropertiesToggles{path: path, logger: logger.With("component", "properties_toggles")}
}

func (t *PropertiesToggles) OutboundSchedulingEnabled() bool {
	return t.flag(KeyOutboundSchedulerEnabled)
}

func (t *PropertiesToggles) SchedulerEnabled() bool {
	return t.flag(KeySchedulerEnabled)
}

func (t *PropertiesToggles) TransportEnabled() bool {
	return t.flag(KeyTransportEnabled)
}

func (t *PropertiesToggles) flag(key string) bool {
	v := viper.New()
	v.SetConfigFile(t.path)
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
			t.logger.Debug("Toggles file not found, treating as disabled", "path", t.path, "key", key)
			return false
		}
		t.logger.Error("Failed to read toggles file", "path", t.path, "key", key, "error", err)
		return false
	}

	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return false
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		t.logger.Warn("Unparsable toggle value, treating as disabled", "path", t.path, "key", key, "value", raw)
		return false
	}
	return enabled
}

// StaticToggles is a fixed toggle set. The zero value disables everything.
type StaticToggles struct {
	Outbound  bool
	Scheduler bool
	Transport bool
}

// AllEnabled returns toggles with every feature on.
func AllEnabled() StaticToggles {
	return StaticToggles{Outbound: true, Scheduler: true, Transport: true}
}

func (s StaticToggles) OutboundSchedulingEnabled() bool { return s.Outbound }
func (s StaticToggles) SchedulerEnabled() bool          { return s.Scheduler }
func (s StaticToggles) TransportEnabled() bool          { return s.Transport }
