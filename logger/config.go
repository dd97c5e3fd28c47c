package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ModuleConfig holds per-package log levels keyed by dotted module name.
// More specific names win: "engine.execution" overrides "engine".
type ModuleConfig struct {
	mu           sync.RWMutex
	defaultLevel slog.Level
	modules      map[string]slog.Level
}

// NewModuleConfig creates a ModuleConfig with the given default level.
func NewModuleConfig(defaultLevel slog.Level) *ModuleConfig {
	return &ModuleConfig{
		defaultLevel: defaultLevel,
		modules:      make(map[string]slog.Level),
	}
}

// SetModuleLevel sets the log level for a module. Names use dot notation,
// e.g. "engine.execution".
func (m *ModuleConfig) SetModuleLevel(module string, level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[module] = level
}

// SetDefaultLevel sets the level used when no module entry matches.
func (m *ModuleConfig) SetDefaultLevel(level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultLevel = level
}

// LevelFor resolves the level for a module, walking up the dotted
// hierarchy until an entry matches. "engine.execution.action" falls back
// to "engine.execution", then "engine", then the default.
func (m *ModuleConfig) LevelFor(module string) slog.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for {
		if level, ok := m.modules[module]; ok {
			return level
		}
		lastDot := strings.LastIndex(module, ".")
		if lastDot == -1 {
			return m.defaultLevel
		}
		module = module[:lastDot]
	}
}

// globalModuleConfig is the module configuration behind the global logger.
var globalModuleConfig = NewModuleConfig(slog.LevelInfo)

// LoggingConfigSpec describes a full logger configuration for Configure.
type LoggingConfigSpec struct {
	DefaultLevel string
	Format       string // "json" or "text"
	CommonFields map[string]string
	Modules      []ModuleLoggingSpec
}

// ModuleLoggingSpec sets the level for one module.
type ModuleLoggingSpec struct {
	Name   string
	Level  string
	Fields map[string]string
}

// Log format constants
const (
	FormatJSON = "json"
	FormatText = "text"
)

// ConfigFromEnv builds a LoggingConfigSpec from the LOG_LEVEL, LOG_FORMAT,
// and LOG_MODULES environment variables. LOG_MODULES is a comma-separated
// list of name=level pairs, e.g. "engine=debug,registry=warn".
func ConfigFromEnv() *LoggingConfigSpec {
	cfg := &LoggingConfigSpec{
		DefaultLevel: os.Getenv("LOG_LEVEL"),
		Format:       os.Getenv("LOG_FORMAT"),
	}
	for _, pair := range strings.Split(os.Getenv("LOG_MODULES"), ",") {
		name, level, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		cfg.Modules = append(cfg.Modules, ModuleLoggingSpec{Name: name, Level: level})
	}
	return cfg
}

// Configure rebuilds the global logger from the given spec. A handler
// installed via SetLogger is preserved.
func Configure(cfg *LoggingConfigSpec) error {
	if cfg == nil || customHandler != nil {
		return nil
	}

	defaultLevel := ParseLevel(cfg.DefaultLevel)

	var commonFields []slog.Attr
	for k, v := range cfg.CommonFields {
		commonFields = append(commonFields, slog.String(k, v))
	}

	moduleConfig := NewModuleConfig(defaultLevel)
	for _, mod := range cfg.Modules {
		moduleConfig.SetModuleLevel(mod.Name, ParseLevel(mod.Level))
	}
	globalModuleConfig = moduleConfig

	initLoggerWithConfig(defaultLevel, commonFields, moduleConfig, cfg.Format == FormatJSON)
	return nil
}

func initLoggerWithConfig(level slog.Level, commonFields []slog.Attr, moduleConfig *ModuleConfig, useJSON bool) {
	opts := &slog.HandlerOptions{Level: level}

	var baseHandler slog.Handler
	if useJSON {
		baseHandler = slog.NewJSONHandler(logOutput, opts)
	} else {
		baseHandler = slog.NewTextHandler(logOutput, opts)
	}

	// The module-aware handler walks the call stack on every record, so it
	// is only installed when per-module levels are actually configured.
	var handler slog.Handler
	if len(moduleConfig.modules) > 0 {
		handler = NewModuleHandler(baseHandler, moduleConfig, commonFields...)
	} else {
		handler = NewContextHandler(baseHandler, commonFields...)
	}

	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}
