package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config application configuration structure
type Config struct {
	Replay    ReplayConfig    `yaml:"replay" mapstructure:"replay"`
	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Web       WebConfig       `yaml:"web" mapstructure:"web"`
}

// ReplayConfig selects the capture file and the session behaviour
type ReplayConfig struct {
	CaptureFile string   `yaml:"capture_file" mapstructure:"capture_file"`
	Format      string   `yaml:"format" mapstructure:"format"`
	MimeFilter  []string `yaml:"mime_filter" mapstructure:"mime_filter"`
	// CookieJar switches the session to jar mode when non-empty
	CookieJar       string `yaml:"cookie_jar" mapstructure:"cookie_jar"`
	ReuseConnection bool   `yaml:"reuse_connection" mapstructure:"reuse_connection"`
	ResetSettings   bool   `yaml:"reset_settings" mapstructure:"reset_settings"`
}

// TransportConfig HTTP client tuning, durations in seconds
type TransportConfig struct {
	Timeout               int  `yaml:"timeout" mapstructure:"timeout"`
	FollowRedirects       bool `yaml:"follow_redirects" mapstructure:"follow_redirects"`
	MaxRedirects          int  `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxIdleConns          int  `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost   int  `yaml:"max_idle_conns_per_host" mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout       int  `yaml:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
	ResponseHeaderTimeout int  `yaml:"response_header_timeout" mapstructure:"response_header_timeout"`
	TLSHandshakeTimeout   int  `yaml:"tls_handshake_timeout" mapstructure:"tls_handshake_timeout"`
	ExpectContinueTimeout int  `yaml:"expect_continue_timeout" mapstructure:"expect_continue_timeout"`
	TLSInsecureSkipVerify bool `yaml:"tls_insecure_skip_verify" mapstructure:"tls_insecure_skip_verify"`
	Verbose               bool `yaml:"verbose" mapstructure:"verbose"`
}

// LogConfig log configuration
type LogConfig struct {
	Level       string        `yaml:"level" mapstructure:"level"`
	FileLogging FileLogConfig `yaml:"file_logging" mapstructure:"file_logging"`
}

// FileLogConfig file log configuration
type FileLogConfig struct {
	Enable     bool   `yaml:"enable" mapstructure:"enable"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// OutputConfig controls CLI output style
type OutputConfig struct {
	Mode    string `yaml:"mode" mapstructure:"mode"`
	Silence bool   `yaml:"silence" mapstructure:"silence"`
	Locale  string `yaml:"locale" mapstructure:"locale"`
	// ShowBody prints response bodies, truncated to MaxBodyBytes (0 = unlimited)
	ShowBody     bool `yaml:"show_body" mapstructure:"show_body"`
	MaxBodyBytes int  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	// Pretty re-indents JSON, XML and HTML bodies and tabulates form bodies
	Pretty bool `yaml:"pretty" mapstructure:"pretty"`
}

// StorageConfig replay persistence
type StorageConfig struct {
	Enable     bool          `yaml:"enable" mapstructure:"enable"`
	Driver     string        `yaml:"driver" mapstructure:"driver"`
	Path       string        `yaml:"path" mapstructure:"path"`
	MaxRecords int           `yaml:"max_records" mapstructure:"max_records"`
	Retention  time.Duration `yaml:"retention" mapstructure:"retention"`
}

// WebConfig control API configuration
type WebConfig struct {
	Host            string          `yaml:"host" mapstructure:"host"`
	Port            int             `yaml:"port" mapstructure:"port"`
	AdminPath       string          `yaml:"admin_path" mapstructure:"admin_path"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	Export          WebExportConfig `yaml:"export" mapstructure:"export"`
}

// WebExportConfig export configuration
type WebExportConfig struct {
	Enable  bool     `yaml:"enable" mapstructure:"enable"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// LoadConfig load configuration
// If v is nil, a new viper instance will be created
func LoadConfig(configPath string, v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix("REQREPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.reqreplay")
		v.AddConfigPath("/etc/reqreplay")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		log.Printf("Config file loaded: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Unmarshal skips defaults for zero-value fields
	applyDefaults(&config, v)

	return &config, nil
}

// applyDefaults apply default values to zero-value fields in the struct.
// Command line flags are bound to the same viper keys in main.go.
func applyDefaults(cfg *Config, v *viper.Viper) {
	if cfg.Replay.CaptureFile == "" {
		cfg.Replay.CaptureFile = v.GetString("replay.capture_file")
	}
	if cfg.Replay.Format == "" {
		cfg.Replay.Format = v.GetString("replay.format")
	}
	if len(cfg.Replay.MimeFilter) == 0 {
		cfg.Replay.MimeFilter = v.GetStringSlice("replay.mime_filter")
	}
	cfg.Replay.MimeFilter = normalizeList(cfg.Replay.MimeFilter, false)
	if cfg.Replay.CookieJar == "" {
		cfg.Replay.CookieJar = v.GetString("replay.cookie_jar")
	}
	// Bool fields always come from viper so file values and defaults both apply
	cfg.Replay.ReuseConnection = v.GetBool("replay.reuse_connection")
	cfg.Replay.ResetSettings = v.GetBool("replay.reset_settings")

	if cfg.Transport.Timeout == 0 {
		cfg.Transport.Timeout = v.GetInt("transport.timeout")
	}
	cfg.Transport.FollowRedirects = v.GetBool("transport.follow_redirects")
	if cfg.Transport.MaxRedirects == 0 {
		cfg.Transport.MaxRedirects = v.GetInt("transport.max_redirects")
	}
	if cfg.Transport.MaxIdleConns == 0 {
		cfg.Transport.MaxIdleConns = v.GetInt("transport.max_idle_conns")
	}
	if cfg.Transport.MaxIdleConnsPerHost == 0 {
		cfg.Transport.MaxIdleConnsPerHost = v.GetInt("transport.max_idle_conns_per_host")
	}
	if cfg.Transport.IdleConnTimeout == 0 {
		cfg.Transport.IdleConnTimeout = v.GetInt("transport.idle_conn_timeout")
	}
	if cfg.Transport.ResponseHeaderTimeout == 0 {
		cfg.Transport.ResponseHeaderTimeout = v.GetInt("transport.response_header_timeout")
	}
	if cfg.Transport.TLSHandshakeTimeout == 0 {
		cfg.Transport.TLSHandshakeTimeout = v.GetInt("transport.tls_handshake_timeout")
	}
	if cfg.Transport.ExpectContinueTimeout == 0 {
		cfg.Transport.ExpectContinueTimeout = v.GetInt("transport.expect_continue_timeout")
	}
	cfg.Transport.TLSInsecureSkipVerify = v.GetBool("transport.tls_insecure_skip_verify")
	cfg.Transport.Verbose = v.GetBool("transport.verbose")

	if cfg.Log.Level == "" {
		cfg.Log.Level = v.GetString("log.level")
	}
	cfg.Log.FileLogging.Enable = v.GetBool("log.file_logging.enable")
	cfg.Log.FileLogging.Compress = v.GetBool("log.file_logging.compress")
	if cfg.Log.FileLogging.Path == "" {
		cfg.Log.FileLogging.Path = v.GetString("log.file_logging.path")
	}
	if cfg.Log.FileLogging.MaxSizeMB == 0 {
		cfg.Log.FileLogging.MaxSizeMB = v.GetInt("log.file_logging.max_size_mb")
	}
	if cfg.Log.FileLogging.MaxBackups == 0 {
		cfg.Log.FileLogging.MaxBackups = v.GetInt("log.file_logging.max_backups")
	}
	if cfg.Log.FileLogging.MaxAgeDays == 0 {
		cfg.Log.FileLogging.MaxAgeDays = v.GetInt("log.file_logging.max_age_days")
	}

	if cfg.Output.Mode == "" {
		cfg.Output.Mode = v.GetString("output.mode")
	}
	cfg.Output.Silence = v.GetBool("output.silence")
	if cfg.Output.Locale == "" {
		cfg.Output.Locale = v.GetString("output.locale")
	}
	cfg.Output.ShowBody = v.GetBool("output.show_body")
	cfg.Output.Pretty = v.GetBool("output.pretty")
	if cfg.Output.MaxBodyBytes == 0 {
		cfg.Output.MaxBodyBytes = v.GetInt("output.max_body_bytes")
	}

	cfg.Storage.Enable = v.GetBool("storage.enable")
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = v.GetString("storage.driver")
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = v.GetString("storage.path")
	}
	if cfg.Storage.MaxRecords == 0 {
		cfg.Storage.MaxRecords = v.GetInt("storage.max_records")
	}
	if cfg.Storage.Retention == 0 {
		cfg.Storage.Retention = v.GetDuration("storage.retention")
	}

	if cfg.Web.Host == "" {
		cfg.Web.Host = v.GetString("web.host")
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = v.GetInt("web.port")
	}
	if cfg.Web.AdminPath == "" {
		cfg.Web.AdminPath = v.GetString("web.admin_path")
	}
	if cfg.Web.ShutdownTimeout == 0 {
		cfg.Web.ShutdownTimeout = v.GetDuration("web.shutdown_timeout")
	}
	cfg.Web.Export.Enable = v.GetBool("web.export.enable")
	if len(cfg.Web.Export.Formats) == 0 {
		cfg.Web.Export.Formats = v.GetStringSlice("web.export.formats")
	}
	cfg.Web.Export.Formats = normalizeList(cfg.Web.Export.Formats, true)
}

// setDefaults set default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("replay.capture_file", "")
	v.SetDefault("replay.format", "auto")
	v.SetDefault("replay.mime_filter", []string{})
	v.SetDefault("replay.cookie_jar", "")
	v.SetDefault("replay.reuse_connection", true)
	v.SetDefault("replay.reset_settings", false)

	v.SetDefault("transport.timeout", 30)
	v.SetDefault("transport.follow_redirects", false)
	v.SetDefault("transport.max_redirects", 10)
	v.SetDefault("transport.max_idle_conns", 100)
	v.SetDefault("transport.max_idle_conns_per_host", 10)
	v.SetDefault("transport.idle_conn_timeout", 90)
	v.SetDefault("transport.response_header_timeout", 15)
	v.SetDefault("transport.tls_handshake_timeout", 10)
	v.SetDefault("transport.expect_continue_timeout", 1)
	v.SetDefault("transport.tls_insecure_skip_verify", false)
	v.SetDefault("transport.verbose", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_logging.enable", false)
	v.SetDefault("log.file_logging.path", "./reqreplay.log")
	v.SetDefault("log.file_logging.max_size_mb", 10)
	v.SetDefault("log.file_logging.max_backups", 5)
	v.SetDefault("log.file_logging.max_age_days", 30)
	v.SetDefault("log.file_logging.compress", true)

	v.SetDefault("output.mode", "console")
	v.SetDefault("output.silence", false)
	v.SetDefault("output.locale", "en")
	v.SetDefault("output.show_body", false)
	v.SetDefault("output.max_body_bytes", 4096)
	v.SetDefault("output.pretty", true)

	v.SetDefault("storage.enable", false)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", "./data/reqreplay.db")
	v.SetDefault("storage.max_records", 100000)
	v.SetDefault("storage.retention", "0s")

	v.SetDefault("web.host", "127.0.0.1")
	v.SetDefault("web.port", 38889)
	v.SetDefault("web.admin_path", "/api")
	v.SetDefault("web.shutdown_timeout", "5s")
	v.SetDefault("web.export.enable", true)
	v.SetDefault("web.export.formats", []string{"tamperdata", "har", "json"})
}

// Validate checks the configuration and fills normalised values
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Replay.Format)) {
	case "", "auto":
		c.Replay.Format = "auto"
	case "tamperdata", "xml":
		c.Replay.Format = "tamperdata"
	case "har":
		c.Replay.Format = "har"
	default:
		return fmt.Errorf("replay format must be auto, tamperdata or har")
	}
	if c.Replay.ResetSettings && !c.Replay.ReuseConnection {
		return fmt.Errorf("replay reset_settings requires reuse_connection")
	}

	if c.Transport.Timeout < 0 {
		return fmt.Errorf("transport timeout cannot be negative")
	}
	if c.Transport.MaxRedirects < 0 {
		return fmt.Errorf("transport max redirects cannot be negative")
	}
	if c.Transport.MaxIdleConns < 0 || c.Transport.MaxIdleConnsPerHost < 0 {
		return fmt.Errorf("transport idle connection limits cannot be negative")
	}
	if c.Transport.IdleConnTimeout < 0 || c.Transport.ResponseHeaderTimeout < 0 ||
		c.Transport.TLSHandshakeTimeout < 0 || c.Transport.ExpectContinueTimeout < 0 {
		return fmt.Errorf("transport timeouts cannot be negative")
	}

	switch strings.ToLower(c.Output.Mode) {
	case "", "console", "json":
		if c.Output.Mode == "" {
			c.Output.Mode = "console"
		}
	default:
		return fmt.Errorf("output mode must be 'console' or 'json'")
	}
	if c.Output.MaxBodyBytes < 0 {
		return fmt.Errorf("output max_body_bytes cannot be negative")
	}
	if strings.TrimSpace(c.Output.Locale) == "" {
		c.Output.Locale = "en"
	}

	if c.Storage.Enable {
		switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
		case "", "sqlite", "sqlite3":
			c.Storage.Driver = "sqlite"
		default:
			return fmt.Errorf("storage driver must be sqlite")
		}
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage path cannot be empty")
		}
	}
	if c.Storage.MaxRecords < 0 {
		return fmt.Errorf("storage max_records cannot be negative")
	}
	if c.Storage.Retention < 0 {
		return fmt.Errorf("storage retention cannot be negative")
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Log.FileLogging.Enable {
		if c.Log.FileLogging.Path == "" {
			return fmt.Errorf("log file path cannot be empty when file logging is enabled")
		}
		if c.Log.FileLogging.MaxSizeMB < 1 {
			return fmt.Errorf("log file max size must be at least 1MB")
		}
		if c.Log.FileLogging.MaxBackups < 0 {
			return fmt.Errorf("log file max backups cannot be negative")
		}
		if c.Log.FileLogging.MaxAgeDays < 0 {
			return fmt.Errorf("log file max age cannot be negative")
		}
	}

	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("invalid web port: %d (must be 1-65535)", c.Web.Port)
	}
	if c.Web.AdminPath == "" {
		return fmt.Errorf("web admin path cannot be empty")
	}
	if !strings.HasPrefix(c.Web.AdminPath, "/") {
		return fmt.Errorf("web admin path must start with '/'")
	}
	if c.Web.ShutdownTimeout < 0 {
		return fmt.Errorf("web shutdown timeout cannot be negative")
	}
	if c.Web.Export.Enable {
		if len(c.Web.Export.Formats) == 0 {
			return fmt.Errorf("web export formats cannot be empty when export enabled")
		}
		for _, f := range c.Web.Export.Formats {
			switch f {
			case "tamperdata", "har", "json":
			default:
				return fmt.Errorf("unsupported web export format: %s", f)
			}
		}
	}

	return nil
}

// normalizeList trims entries and drops blanks and duplicates, keeping order.
func normalizeList(list []string, lower bool) []string {
	if len(list) == 0 {
		return list
	}
	set := make(map[string]struct{}, len(list))
	result := make([]string, 0, len(list))
	for _, item := range list {
		norm := strings.TrimSpace(item)
		if lower {
			norm = strings.ToLower(norm)
		}
		if norm == "" {
			continue
		}
		if _, exists := set[norm]; exists {
			continue
		}
		set[norm] = struct{}{}
		result = append(result, norm)
	}
	return result
}
