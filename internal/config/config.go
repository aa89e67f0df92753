package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// GlobalFlags carries the persistent command-line flags. Zero values mean
// "not set" and defer to the config file, environment and defaults.
type GlobalFlags struct {
	ConfigPath         string
	Chain              string
	RPCURL             string
	JSON               bool
	LogLevel           string
	LogFormat          string
	ConfirmTimeout     string
	PollInterval       string
	MinHealthFactor    float64
	SlippageBps        int64
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	StorePath          string
	StoreLockPath      string
	ListenAddr         string
}

// Settings is the fully resolved runtime configuration. Precedence, lowest
// to highest: defaults, config file, environment, flags.
type Settings struct {
	Chain              string
	RPCURL             string
	ExplorerURL        string
	OutputMode         string
	LogLevel           string
	LogFormat          string
	ConfirmTimeout     time.Duration
	PollInterval       time.Duration
	MinHealthFactor    float64
	SlippageBps        int64
	SwapDeadline       time.Duration
	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	StorePath          string
	StoreLockPath      string
	ListenAddr         string
}

type fileConfig struct {
	Chain    string `yaml:"chain"`
	RPCURL   string `yaml:"rpc_url"`
	Explorer string `yaml:"explorer_url"`
	Output   string `yaml:"output"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Confirm struct {
		Timeout      string `yaml:"timeout"`
		PollInterval string `yaml:"poll_interval"`
	} `yaml:"confirm"`
	Policy struct {
		MinHealthFactor *float64 `yaml:"min_health_factor"`
		SlippageBps     *int64   `yaml:"slippage_bps"`
		SwapDeadline    string   `yaml:"swap_deadline"`
	} `yaml:"policy"`
	Fees struct {
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
	} `yaml:"fees"`
	Store struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"store"`
	Server struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"server"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}
	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Chain == "" {
		settings.Chain = "mantle"
	}
	if settings.ConfirmTimeout <= 0 {
		settings.ConfirmTimeout = 2 * time.Minute
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = 2 * time.Second
	}
	if settings.MinHealthFactor <= 0 {
		settings.MinHealthFactor = 1.05
	}
	if settings.SlippageBps <= 0 || settings.SlippageBps >= 10_000 {
		settings.SlippageBps = 50
	}
	if settings.GasMultiplier <= 1 {
		settings.GasMultiplier = 1.2
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	storePath, lockPath, err := defaultStorePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Chain:           "mantle",
		OutputMode:      "text",
		LogLevel:        "info",
		LogFormat:       "text",
		ConfirmTimeout:  2 * time.Minute,
		PollInterval:    2 * time.Second,
		MinHealthFactor: 1.05,
		SlippageBps:     50,
		SwapDeadline:    5 * time.Minute,
		GasMultiplier:   1.2,
		StorePath:       storePath,
		StoreLockPath:   lockPath,
		ListenAddr:      "127.0.0.1:8787",
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "chainagent", "config.yaml"), nil
}

func defaultStorePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "chainagent")
	return filepath.Join(dir, "runs.db"), filepath.Join(dir, "runs.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Chain != "" {
		settings.Chain = strings.ToLower(cfg.Chain)
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	if cfg.Explorer != "" {
		settings.ExplorerURL = cfg.Explorer
	}
	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = cfg.Log.Format
	}
	if cfg.Confirm.Timeout != "" {
		d, err := time.ParseDuration(cfg.Confirm.Timeout)
		if err != nil {
			return fmt.Errorf("config confirm.timeout: %w", err)
		}
		settings.ConfirmTimeout = d
	}
	if cfg.Confirm.PollInterval != "" {
		d, err := time.ParseDuration(cfg.Confirm.PollInterval)
		if err != nil {
			return fmt.Errorf("config confirm.poll_interval: %w", err)
		}
		settings.PollInterval = d
	}
	if cfg.Policy.MinHealthFactor != nil {
		settings.MinHealthFactor = *cfg.Policy.MinHealthFactor
	}
	if cfg.Policy.SlippageBps != nil {
		settings.SlippageBps = *cfg.Policy.SlippageBps
	}
	if cfg.Policy.SwapDeadline != "" {
		d, err := time.ParseDuration(cfg.Policy.SwapDeadline)
		if err != nil {
			return fmt.Errorf("config policy.swap_deadline: %w", err)
		}
		settings.SwapDeadline = d
	}
	if cfg.Fees.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Fees.GasMultiplier
	}
	if cfg.Fees.MaxFeeGwei != "" {
		settings.MaxFeeGwei = cfg.Fees.MaxFeeGwei
	}
	if cfg.Fees.MaxPriorityFeeGwei != "" {
		settings.MaxPriorityFeeGwei = cfg.Fees.MaxPriorityFeeGwei
	}
	if cfg.Store.Path != "" {
		settings.StorePath = cfg.Store.Path
	}
	if cfg.Store.LockPath != "" {
		settings.StoreLockPath = cfg.Store.LockPath
	}
	if cfg.Server.ListenAddr != "" {
		settings.ListenAddr = cfg.Server.ListenAddr
	}
	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("CHAINAGENT_CHAIN"); v != "" {
		settings.Chain = strings.ToLower(v)
	}
	if v := os.Getenv("CHAINAGENT_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("CHAINAGENT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("CHAINAGENT_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("CHAINAGENT_LOG_FORMAT"); v != "" {
		settings.LogFormat = v
	}
	if v := os.Getenv("CHAINAGENT_CONFIRM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.ConfirmTimeout = d
		}
	}
	if v := os.Getenv("CHAINAGENT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.PollInterval = d
		}
	}
	if v := os.Getenv("CHAINAGENT_MIN_HEALTH_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.MinHealthFactor = f
		}
	}
	if v := os.Getenv("CHAINAGENT_SLIPPAGE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.SlippageBps = n
		}
	}
	if v := os.Getenv("CHAINAGENT_GAS_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.GasMultiplier = f
		}
	}
	if v := os.Getenv("CHAINAGENT_MAX_FEE_GWEI"); v != "" {
		settings.MaxFeeGwei = v
	}
	if v := os.Getenv("CHAINAGENT_MAX_PRIORITY_FEE_GWEI"); v != "" {
		settings.MaxPriorityFeeGwei = v
	}
	if v := os.Getenv("CHAINAGENT_STORE_PATH"); v != "" {
		settings.StorePath = v
	}
	if v := os.Getenv("CHAINAGENT_STORE_LOCK_PATH"); v != "" {
		settings.StoreLockPath = v
	}
	if v := os.Getenv("CHAINAGENT_LISTEN_ADDR"); v != "" {
		settings.ListenAddr = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.Chain != "" {
		settings.Chain = strings.ToLower(flags.Chain)
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		settings.LogFormat = flags.LogFormat
	}
	if flags.ConfirmTimeout != "" {
		d, err := time.ParseDuration(flags.ConfirmTimeout)
		if err != nil {
			return fmt.Errorf("invalid --confirm-timeout: %w", err)
		}
		settings.ConfirmTimeout = d
	}
	if flags.PollInterval != "" {
		d, err := time.ParseDuration(flags.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid --poll-interval: %w", err)
		}
		settings.PollInterval = d
	}
	if flags.MinHealthFactor > 0 {
		settings.MinHealthFactor = flags.MinHealthFactor
	}
	if flags.SlippageBps > 0 {
		settings.SlippageBps = flags.SlippageBps
	}
	if flags.GasMultiplier > 0 {
		settings.GasMultiplier = flags.GasMultiplier
	}
	if flags.MaxFeeGwei != "" {
		settings.MaxFeeGwei = flags.MaxFeeGwei
	}
	if flags.MaxPriorityFeeGwei != "" {
		settings.MaxPriorityFeeGwei = flags.MaxPriorityFeeGwei
	}
	if flags.StorePath != "" {
		settings.StorePath = flags.StorePath
	}
	if flags.StoreLockPath != "" {
		settings.StoreLockPath = flags.StoreLockPath
	}
	if flags.ListenAddr != "" {
		settings.ListenAddr = flags.ListenAddr
	}
	return nil
}
