package config

import (
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/JonMunkholm/ted/internal/ted"
)

// Load reads configuration from the TOML profile named by TED_CONFIG_FILE
// (if set) and environment variables. It applies defaults for unset
// values and validates the result.
func Load() (*Config, error) {
	var prof profile
	if path := os.Getenv(ProfileEnv); path != "" {
		var err error
		if prof, err = loadProfile(path); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
	}

	cfg := &Config{}
	if err := loadStruct(reflect.ValueOf(cfg).Elem(), "", prof); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := prof.unused(); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// profile holds the tables of a TOML profile. Keys are removed as they
// are read so that leftovers can be reported.
type profile map[string]map[string]any

func loadProfile(path string) (profile, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}

	prof := make(profile, len(raw))
	for section, v := range raw {
		table, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("profile %s: %q must be a table", path, section)
		}
		prof[section] = table
	}
	return prof, nil
}

// take returns the profile value for section.key as env-style text.
func (p profile) take(section, key string) (string, bool) {
	table, ok := p[section]
	if !ok || key == "" {
		return "", false
	}
	v, ok := table[key]
	if !ok {
		return "", false
	}
	delete(table, key)

	if list, ok := v.([]any); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ","), true
	}
	return fmt.Sprint(v), true
}

// unused reports profile keys no config field consumed.
func (p profile) unused() error {
	var keys []string
	for section, table := range p {
		if !knownSection(section) && len(table) == 0 {
			keys = append(keys, section)
		}
		for key := range table {
			keys = append(keys, section+"."+key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	return fmt.Errorf("unknown profile keys: %s", strings.Join(keys, ", "))
}

func knownSection(name string) bool {
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == name {
			return true
		}
	}
	return false
}

// loadStruct recursively populates struct fields. For each field the
// primary env var wins, then the alternate, then the profile, then the
// default.
func loadStruct(v reflect.Value, section string, prof profile) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		// Skip unexported fields
		if !fieldVal.CanSet() {
			continue
		}

		// Recurse into nested structs; their toml tag names the profile table
		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, field.Tag.Get("toml"), prof); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		key := field.Tag.Get("toml")
		profValue, inProfile := prof.take(section, key)

		source := envName
		value := os.Getenv(envName)
		if value == "" && envAlt != "" {
			value = os.Getenv(envAlt)
		}
		if value == "" && inProfile {
			value = profValue
			source = section + "." + key
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", source, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		// Split comma-separated values, trim whitespace
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// DelimiterRune returns the configured delimiter. `\t` and a literal tab
// both mean tab.
func (c *FormatConfig) DelimiterRune() (rune, error) {
	if c.Delimiter == `\t` {
		return '\t', nil
	}
	r := []rune(c.Delimiter)
	if len(r) != 1 {
		return 0, fmt.Errorf("TED_DELIMITER (%q) must be a single character", c.Delimiter)
	}
	return r[0], nil
}

// TedOptions returns the codec options for this configuration.
func (c *Config) TedOptions() (ted.Options, error) {
	delim, err := c.Format.DelimiterRune()
	if err != nil {
		return ted.Options{}, err
	}
	opts := ted.Options{
		Delimiter: delim,
		Missing:   c.Format.Missing,
		MaxBytes:  c.Jobs.MaxFileSize,
	}
	if err := opts.Validate(); err != nil {
		return ted.Options{}, err
	}
	return opts, nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Enabled() {
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Format validation
	if _, err := c.TedOptions(); err != nil {
		errs = append(errs, err.Error())
	}

	// Job validation
	if c.Jobs.MaxFileSize <= 0 {
		errs = append(errs, "UPLOAD_MAX_FILE_SIZE must be positive")
	}
	if c.Jobs.MaxConcurrent <= 0 {
		errs = append(errs, "JOBS_MAX_CONCURRENT must be positive")
	}
	if c.Jobs.MaxWaitTime <= 0 {
		errs = append(errs, "JOBS_MAX_WAIT_TIME must be positive")
	}
	if c.Jobs.ListLimit <= 0 {
		errs = append(errs, "ARCHIVE_LIST_LIMIT must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Watch validation
	if c.Watch.Dir != "" && c.Watch.Debounce <= 0 {
		errs = append(errs, "WATCH_DEBOUNCE must be positive")
	}
	if c.Watch.Archive && !c.Database.Enabled() {
		errs = append(errs, "WATCH_ARCHIVE requires DATABASE_URL")
	}

	// Export validation
	if c.Export.RowGroupSize < 0 {
		errs = append(errs, "EXPORT_ROW_GROUP_SIZE must be non-negative")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The database URL and API keys are masked.
func (c *Config) String() string {
	db := "[UNSET]"
	if c.Database.Enabled() {
		db = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		db, c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Format: {Delimiter: %q, Missing: %q}, ", c.Format.Delimiter, c.Format.Missing)
	fmt.Fprintf(&b, "Jobs: {MaxFileSize: %d, MaxConcurrent: %d}, ",
		c.Jobs.MaxFileSize, c.Jobs.MaxConcurrent)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Watch: {Dir: %q, Archive: %v}, ", c.Watch.Dir, c.Watch.Archive)
	fmt.Fprintf(&b, "Export: {Compression: %q, RowGroupSize: %d}, ",
		c.Export.Compression, c.Export.RowGroupSize)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
