package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the configuration of the pagewalker service.
type Config struct {
	// HTTP listener
	Server ServerConfig `yaml:"server" json:"server"`

	// Browser launch settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Session lifecycle and login state persistence
	Session SessionConfig `yaml:"session" json:"session"`

	// Authentication gate detection and resolution
	Auth AuthConfig `yaml:"auth" json:"auth"`

	// Element registry selectors
	Registry RegistryConfig `yaml:"registry" json:"registry"`

	// Interaction dispatcher wait budgets
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch"`

	// Table extraction and pagination lookups
	Extract ExtractConfig `yaml:"extract" json:"extract"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP interface.
type ServerConfig struct {
	Address         string        `yaml:"address" json:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// BrowserConfig configures how the browser is launched.
type BrowserConfig struct {
	Headless       bool          `yaml:"headless" json:"headless"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"` // default page operation timeout
	ViewportWidth  int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height" json:"viewport_height"`
	SkipInstall    bool          `yaml:"skip_install" json:"skip_install"` // driver and browsers already provisioned
}

// SessionConfig configures the session lifecycle.
type SessionConfig struct {
	LoginStatePath       string        `yaml:"login_state_path" json:"login_state_path"`
	TeardownAfterExtract bool          `yaml:"teardown_after_extract" json:"teardown_after_extract"`
	IdleTimeout          time.Duration `yaml:"idle_timeout" json:"idle_timeout"` // 0 keeps the session open indefinitely
}

// AuthStrategy selects how an authentication gate is resolved.
type AuthStrategy string

const (
	// AuthStrategyNone only detects gates and never resolves them
	AuthStrategyNone AuthStrategy = "none"
	// AuthStrategyOCR logs in automatically by solving the captcha
	AuthStrategyOCR AuthStrategy = "ocr"
	// AuthStrategyDeferred waits for an out-of-band login and persists the result
	AuthStrategyDeferred AuthStrategy = "deferred"
)

// AuthConfig configures the authentication gate.
type AuthConfig struct {
	Strategy         AuthStrategy  `yaml:"strategy" json:"strategy"`
	URLPatterns      []string      `yaml:"url_patterns" json:"url_patterns"`
	PasswordSelector string        `yaml:"password_selector" json:"password_selector"`
	CaptchaSelector  string        `yaml:"captcha_selector" json:"captcha_selector"`
	WaitBudget       time.Duration `yaml:"wait_budget" json:"wait_budget"`
	PollInterval     time.Duration `yaml:"poll_interval" json:"poll_interval"`
	OCR              OCRConfig     `yaml:"ocr" json:"ocr"`
}

// OCRConfig configures the automatic captcha login.
type OCRConfig struct {
	LoginURL          string        `yaml:"login_url" json:"login_url"`
	ImageSelector     string        `yaml:"image_selector" json:"image_selector"`
	InputSelector     string        `yaml:"input_selector" json:"input_selector"`
	SubmitSelector    string        `yaml:"submit_selector" json:"submit_selector"`
	LandmarkSelector  string        `yaml:"landmark_selector" json:"landmark_selector"`
	MenuSelector      string        `yaml:"menu_selector" json:"menu_selector"`
	ImageWait         time.Duration `yaml:"image_wait" json:"image_wait"`
	LandmarkWait      time.Duration `yaml:"landmark_wait" json:"landmark_wait"`
	Command           []string      `yaml:"command" json:"command"`   // recognizer executable and args, image on stdin
	Endpoint          string        `yaml:"endpoint" json:"endpoint"` // recognizer HTTP endpoint, used when Command is empty
	PersistAfterLogin bool          `yaml:"persist_after_login" json:"persist_after_login"`
}

// RegistryConfig holds the selectors used to enumerate interactive elements.
type RegistryConfig struct {
	ButtonSelector  string `yaml:"button_selector" json:"button_selector"`
	FieldSelector   string `yaml:"field_selector" json:"field_selector"`
	TableSelector   string `yaml:"table_selector" json:"table_selector"`
	HeadingSelector string `yaml:"heading_selector" json:"heading_selector"`
}

// DispatchConfig holds the bounded waits used after interactions.
type DispatchConfig struct {
	PopupWait           time.Duration `yaml:"popup_wait" json:"popup_wait"`
	LoadWait            time.Duration `yaml:"load_wait" json:"load_wait"`
	HeadingPollInterval time.Duration `yaml:"heading_poll_interval" json:"heading_poll_interval"`
	HeadingPollBudget   time.Duration `yaml:"heading_poll_budget" json:"heading_poll_budget"`
	HeadingSettle       time.Duration `yaml:"heading_settle" json:"heading_settle"`
}

// ExtractConfig configures pagination lookups next to extracted tables.
type ExtractConfig struct {
	PageCountSelector    string `yaml:"page_count_selector" json:"page_count_selector"`
	ControlSelector      string `yaml:"control_selector" json:"control_selector"`
	FallbackControlID    string `yaml:"fallback_control_id" json:"fallback_control_id"`
	FallbackControlLabel string `yaml:"fallback_control_label" json:"fallback_control_label"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level" json:"level"`
	// Dir holds the rotated log files; empty uses ~/.pagewalker/logs
	Dir string `yaml:"dir" json:"dir"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server address is required")
	}

	switch c.Auth.Strategy {
	case AuthStrategyNone, AuthStrategyOCR, AuthStrategyDeferred:
	default:
		return fmt.Errorf("invalid auth strategy: %s (must be 'none', 'ocr', or 'deferred')", c.Auth.Strategy)
	}

	if c.Auth.Strategy == AuthStrategyDeferred {
		if c.Auth.PollInterval <= 0 {
			return fmt.Errorf("auth poll_interval must be positive")
		}
		if c.Auth.WaitBudget < c.Auth.PollInterval {
			return fmt.Errorf("auth wait_budget must be at least one poll_interval")
		}
		if c.Session.LoginStatePath == "" {
			return fmt.Errorf("deferred auth requires session login_state_path")
		}
	}

	if c.Auth.Strategy == AuthStrategyOCR {
		if c.Auth.OCR.LoginURL == "" {
			return fmt.Errorf("ocr auth requires a login_url")
		}
		if len(c.Auth.OCR.Command) == 0 && c.Auth.OCR.Endpoint == "" {
			return fmt.Errorf("ocr auth requires a recognizer command or endpoint")
		}
	}

	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("browser timeout must be positive")
	}
	if c.Browser.ViewportWidth < 100 || c.Browser.ViewportWidth > 5000 {
		return fmt.Errorf("viewport width must be between 100 and 5000 pixels")
	}
	if c.Browser.ViewportHeight < 100 || c.Browser.ViewportHeight > 5000 {
		return fmt.Errorf("viewport height must be between 100 and 5000 pixels")
	}

	if c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session idle_timeout cannot be negative")
	}

	waits := map[string]time.Duration{
		"popup_wait":            c.Dispatch.PopupWait,
		"load_wait":             c.Dispatch.LoadWait,
		"heading_poll_interval": c.Dispatch.HeadingPollInterval,
		"heading_poll_budget":   c.Dispatch.HeadingPollBudget,
		"heading_settle":        c.Dispatch.HeadingSettle,
	}
	for name, d := range waits {
		if d < 0 {
			return fmt.Errorf("dispatch %s cannot be negative", name)
		}
	}

	if c.Registry.ButtonSelector == "" || c.Registry.FieldSelector == "" ||
		c.Registry.TableSelector == "" || c.Registry.HeadingSelector == "" {
		return fmt.Errorf("registry selectors cannot be empty")
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}

	return nil
}

// DefaultConfig returns a default configuration suitable for most use cases
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "127.0.0.1:8000",
			ShutdownTimeout: 10 * time.Second,
		},
		Browser: BrowserConfig{
			Headless:       false,
			Timeout:        30 * time.Second,
			ViewportWidth:  1280,
			ViewportHeight: 720,
		},
		Session: SessionConfig{
			LoginStatePath:       "login_state.json",
			TeardownAfterExtract: true,
		},
		Auth: AuthConfig{
			Strategy:         AuthStrategyNone,
			URLPatterns:      []string{"*login*", "*signin*", "*sign-in*", "*/auth*"},
			PasswordSelector: "input[type='password']",
			CaptchaSelector:  "img[src*='captcha' i], img[alt*='captcha' i], img[id*='captcha' i], input[name*='captcha' i]",
			WaitBudget:       180 * time.Second,
			PollInterval:     2 * time.Second,
			OCR: OCRConfig{
				ImageSelector:    `xpath=//*[@id="app"]/div/div[1]/form/div[3]/div/div[2]/img`,
				InputSelector:    `input[placeholder="验证码："]`,
				SubmitSelector:   `xpath=//*[@id="app"]/div/div[1]/form/div[4]/div/button/span/span`,
				LandmarkSelector: "text=数据目录",
				MenuSelector:     "text=数据目录",
				ImageWait:        10 * time.Second,
				LandmarkWait:     15 * time.Second,
			},
		},
		Registry: RegistryConfig{
			ButtonSelector:  "button, input[type='button'], input[type='submit']",
			FieldSelector:   "input:not([type='button']):not([type='submit']), textarea, select",
			TableSelector:   "table",
			HeadingSelector: "h3",
		},
		Dispatch: DispatchConfig{
			PopupWait:           5 * time.Second,
			LoadWait:            10 * time.Second,
			HeadingPollInterval: 300 * time.Millisecond,
			HeadingPollBudget:   5 * time.Second,
			HeadingSettle:       1 * time.Second,
		},
		Extract: ExtractConfig{
			PageCountSelector:    `xpath=//*[@id="app"]/div/section/div/div/div[1]/div/div[3]/div[2]/div[2]/div[2]/div/span[1]`,
			ControlSelector:      `xpath=//*[@id="app"]/div/section/div/div/div[1]/div/div[3]/div[2]/div[2]/div[2]/div/span[3]/span[1]`,
			FallbackControlID:    "p1216",
			FallbackControlLabel: "前往",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file on top of DefaultConfig.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Override keys understood by ApplyOverrides. They double as flag names and,
// upper-cased with a PAGEWALKER_ prefix, as environment variables.
const (
	KeyAddress    = "address"
	KeyHeadless   = "headless"
	KeyAuth       = "auth-strategy"
	KeyLoginState = "login-state"
	KeyLogLevel   = "log-level"
	KeyLogDir     = "log-dir"
	KeyKeepOpen   = "keep-session"
)

// ApplyOverrides copies every explicitly set flag or environment value from v
// onto the configuration.
func (c *Config) ApplyOverrides(v *viper.Viper) {
	if v == nil {
		return
	}
	if v.IsSet(KeyAddress) {
		c.Server.Address = v.GetString(KeyAddress)
	}
	if v.IsSet(KeyHeadless) {
		c.Browser.Headless = v.GetBool(KeyHeadless)
	}
	if v.IsSet(KeyAuth) {
		c.Auth.Strategy = AuthStrategy(v.GetString(KeyAuth))
	}
	if v.IsSet(KeyLoginState) {
		c.Session.LoginStatePath = v.GetString(KeyLoginState)
	}
	if v.IsSet(KeyLogLevel) {
		c.Logging.Level = v.GetString(KeyLogLevel)
	}
	if v.IsSet(KeyLogDir) {
		c.Logging.Dir = v.GetString(KeyLogDir)
	}
	if v.IsSet(KeyKeepOpen) {
		c.Session.TeardownAfterExtract = !v.GetBool(KeyKeepOpen)
	}
}
