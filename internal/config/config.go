package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/savings-agent/internal/attribution"
	"github.com/ggonzalez94/savings-agent/internal/registry"
	"gopkg.in/yaml.v3"
)

const appDir = "savings"

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Timeout        string
	Retries        int
	LogLevel       string
	LogFormat      string
	RPCURL         string
	ChainID        int64
	KeySource      string
	StatePath      string
	DashboardAddr  string
	Interval       string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	Timeout        time.Duration
	Retries        int

	LogLevel  string
	LogFormat string

	RPCURL         string
	ChainID        int64
	KeySource      string
	PollInterval   time.Duration
	ReceiptTimeout time.Duration

	Contracts registry.Addresses

	BuilderCode         string
	NativeUSDPrice      float64
	Interval            time.Duration
	DriftThreshold      float64
	FeeBps              int64
	MaterialityFloor    float64
	MinHarvestBaseUnits int64

	StatePath     string
	StateLockPath string

	DashboardAddr string

	SyncURL string
	SyncKey string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Log     struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Chain struct {
		RPCURL         string `yaml:"rpc_url"`
		ChainID        int64  `yaml:"chain_id"`
		KeySource      string `yaml:"key_source"`
		PollInterval   string `yaml:"poll_interval"`
		ReceiptTimeout string `yaml:"receipt_timeout"`
	} `yaml:"chain"`
	Contracts struct {
		USDC         string `yaml:"usdc"`
		SavingsVault string `yaml:"savings_vault"`
		HedgeRouter  string `yaml:"hedge_router"`
		REHedge      string `yaml:"re_hedge"`
		SPHedge      string `yaml:"sp_hedge"`
		BondHedge    string `yaml:"bond_hedge"`
	} `yaml:"contracts"`
	Engine struct {
		BuilderCode         string   `yaml:"builder_code"`
		NativeUSDPrice      *float64 `yaml:"native_usd_price"`
		Interval            string   `yaml:"interval"`
		DriftThreshold      *float64 `yaml:"drift_threshold"`
		FeeBps              *int64   `yaml:"fee_bps"`
		MaterialityFloor    *float64 `yaml:"materiality_floor"`
		MinHarvestBaseUnits *int64   `yaml:"min_harvest_base_units"`
	} `yaml:"engine"`
	Storage struct {
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
	} `yaml:"storage"`
	Dashboard struct {
		Addr string `yaml:"addr"`
	} `yaml:"dashboard"`
	Sync struct {
		URL    string `yaml:"url"`
		Key    string `yaml:"key"`
		KeyEnv string `yaml:"key_env"`
	} `yaml:"sync"`
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

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if err := validate(settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func defaultSettings() (Settings, error) {
	statePath, lockPath, err := defaultStatePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:          "json",
		Timeout:             10 * time.Second,
		Retries:             2,
		LogLevel:            "info",
		LogFormat:           "json",
		ChainID:             registry.DefaultChainID,
		KeySource:           "auto",
		PollInterval:        2 * time.Second,
		ReceiptTimeout:      2 * time.Minute,
		BuilderCode:         "clawvault",
		NativeUSDPrice:      2500,
		Interval:            60 * time.Minute,
		DriftThreshold:      5,
		FeeBps:              200,
		MaterialityFloor:    0.10,
		MinHarvestBaseUnits: 1000,
		StatePath:           statePath,
		StateLockPath:       lockPath,
		DashboardAddr:       "127.0.0.1:3402",
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
	return filepath.Join(base, appDir, "config.yaml"), nil
}

func defaultStatePaths() (string, string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(base, appDir)
	return filepath.Join(dir, "state.db"), filepath.Join(dir, "state.lock"), nil
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

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := setDuration(&settings.Timeout, cfg.Timeout, "config timeout"); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	setString(&settings.LogLevel, cfg.Log.Level)
	setString(&settings.LogFormat, cfg.Log.Format)

	setString(&settings.RPCURL, cfg.Chain.RPCURL)
	if cfg.Chain.ChainID != 0 {
		settings.ChainID = cfg.Chain.ChainID
	}
	setString(&settings.KeySource, cfg.Chain.KeySource)
	if err := setDuration(&settings.PollInterval, cfg.Chain.PollInterval, "config chain.poll_interval"); err != nil {
		return err
	}
	if err := setDuration(&settings.ReceiptTimeout, cfg.Chain.ReceiptTimeout, "config chain.receipt_timeout"); err != nil {
		return err
	}

	c := cfg.Contracts
	for _, item := range []struct {
		raw  string
		dst  *common.Address
		name string
	}{
		{c.USDC, &settings.Contracts.USDC, "usdc"},
		{c.SavingsVault, &settings.Contracts.SavingsVault, "savings_vault"},
		{c.HedgeRouter, &settings.Contracts.HedgeRouter, "hedge_router"},
		{c.REHedge, &settings.Contracts.REHedge, "re_hedge"},
		{c.SPHedge, &settings.Contracts.SPHedge, "sp_hedge"},
		{c.BondHedge, &settings.Contracts.BondHedge, "bond_hedge"},
	} {
		if err := setAddress(item.dst, item.raw, "config contracts."+item.name); err != nil {
			return err
		}
	}

	e := cfg.Engine
	setString(&settings.BuilderCode, e.BuilderCode)
	if e.NativeUSDPrice != nil {
		settings.NativeUSDPrice = *e.NativeUSDPrice
	}
	if err := setDuration(&settings.Interval, e.Interval, "config engine.interval"); err != nil {
		return err
	}
	if e.DriftThreshold != nil {
		settings.DriftThreshold = *e.DriftThreshold
	}
	if e.FeeBps != nil {
		settings.FeeBps = *e.FeeBps
	}
	if e.MaterialityFloor != nil {
		settings.MaterialityFloor = *e.MaterialityFloor
	}
	if e.MinHarvestBaseUnits != nil {
		settings.MinHarvestBaseUnits = *e.MinHarvestBaseUnits
	}

	setString(&settings.StatePath, cfg.Storage.Path)
	setString(&settings.StateLockPath, cfg.Storage.LockPath)
	setString(&settings.DashboardAddr, cfg.Dashboard.Addr)

	setString(&settings.SyncURL, cfg.Sync.URL)
	setString(&settings.SyncKey, cfg.Sync.Key)
	if cfg.Sync.KeyEnv != "" {
		settings.SyncKey = os.Getenv(cfg.Sync.KeyEnv)
	}
	return nil
}

// applyEnv reads SAVINGS_* variables first, then the bare names older deployments
// exported. The bare names only fill values the SAVINGS_* set left alone.
func applyEnv(settings *Settings) error {
	if v := os.Getenv("SAVINGS_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("SAVINGS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("SAVINGS_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	setString(&settings.LogLevel, os.Getenv("SAVINGS_LOG_LEVEL"))
	setString(&settings.LogFormat, os.Getenv("SAVINGS_LOG_FORMAT"))
	setString(&settings.KeySource, os.Getenv("SAVINGS_KEY_SOURCE"))
	if v := os.Getenv("SAVINGS_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	setString(&settings.StatePath, os.Getenv("SAVINGS_STATE_PATH"))
	setString(&settings.StateLockPath, os.Getenv("SAVINGS_STATE_LOCK_PATH"))
	setString(&settings.DashboardAddr, os.Getenv("SAVINGS_DASHBOARD_ADDR"))
	if v := os.Getenv("SAVINGS_NATIVE_USD_PRICE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.NativeUSDPrice = f
		}
	}

	setString(&settings.RPCURL, firstEnv("SAVINGS_RPC_URL", "BASE_RPC_URL"))
	setString(&settings.BuilderCode, firstEnv("SAVINGS_BUILDER_CODE", "BUILDER_CODE"))
	setString(&settings.SyncURL, firstEnv("SAVINGS_SYNC_URL", "SUPABASE_URL"))
	setString(&settings.SyncKey, firstEnv("SAVINGS_SYNC_KEY", "SUPABASE_SERVICE_KEY"))

	if v := os.Getenv("SAVINGS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Interval = d
		}
	} else if v := os.Getenv("REBALANCE_INTERVAL_MINUTES"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			settings.Interval = time.Duration(n * float64(time.Minute))
		}
	}
	if v := firstEnv("SAVINGS_DRIFT_THRESHOLD", "REBALANCE_THRESHOLD_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			settings.DriftThreshold = f
		}
	}
	if v := firstEnv("SAVINGS_FEE_BPS", "MANAGEMENT_FEE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.FeeBps = n
		}
	}

	addrEnv := []struct {
		name string
		dst  *common.Address
	}{
		{"SAVINGS_USDC_ADDRESS", &settings.Contracts.USDC},
		{"SAVINGS_VAULT_ADDRESS", &settings.Contracts.SavingsVault},
		{"SAVINGS_HEDGE_ROUTER_ADDRESS", &settings.Contracts.HedgeRouter},
		{"SAVINGS_RE_HEDGE_ADDRESS", &settings.Contracts.REHedge},
		{"SAVINGS_SP_HEDGE_ADDRESS", &settings.Contracts.SPHedge},
		{"SAVINGS_BOND_HEDGE_ADDRESS", &settings.Contracts.BondHedge},
	}
	for _, item := range addrEnv {
		if err := setAddress(item.dst, os.Getenv(item.name), item.name); err != nil {
			return err
		}
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	settings.SelectFields = splitList(flags.Select)
	settings.ResultsOnly = flags.ResultsOnly
	if allowed := splitList(flags.EnableCommands); len(allowed) > 0 {
		settings.EnableCommands = allowed
	}

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	setString(&settings.LogLevel, flags.LogLevel)
	setString(&settings.LogFormat, flags.LogFormat)
	setString(&settings.RPCURL, flags.RPCURL)
	if flags.ChainID > 0 {
		settings.ChainID = flags.ChainID
	}
	setString(&settings.KeySource, flags.KeySource)
	if strings.TrimSpace(flags.StatePath) != "" {
		settings.StatePath = flags.StatePath
		settings.StateLockPath = strings.TrimSuffix(flags.StatePath, filepath.Ext(flags.StatePath)) + ".lock"
	}
	setString(&settings.DashboardAddr, flags.DashboardAddr)
	if flags.Interval != "" {
		d, err := time.ParseDuration(flags.Interval)
		if err != nil {
			return fmt.Errorf("parse --interval: %w", err)
		}
		settings.Interval = d
	}
	return nil
}

func validate(s Settings) error {
	if s.OutputMode != "json" && s.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}
	if s.FeeBps < 0 || s.FeeBps > 10000 {
		return fmt.Errorf("management fee must be within 0..10000 bps, got %d", s.FeeBps)
	}
	if s.DriftThreshold <= 0 {
		return fmt.Errorf("drift threshold must be positive, got %v", s.DriftThreshold)
	}
	if s.Interval <= 0 {
		return fmt.Errorf("rebalance interval must be positive, got %s", s.Interval)
	}
	if s.NativeUSDPrice <= 0 {
		return fmt.Errorf("native usd price must be positive")
	}
	if s.MaterialityFloor < 0 || s.MinHarvestBaseUnits < 0 {
		return fmt.Errorf("materiality floor and min harvest must not be negative")
	}
	if _, err := attribution.Suffix(s.BuilderCode); err != nil {
		return fmt.Errorf("builder code: %w", err)
	}
	host, _, err := net.SplitHostPort(s.DashboardAddr)
	if err != nil {
		return fmt.Errorf("invalid dashboard address %q: %w", s.DashboardAddr, err)
	}
	if !registry.IsLoopbackHost(host) {
		return fmt.Errorf("dashboard address must be loopback, got %q", s.DashboardAddr)
	}
	if s.RPCURL != "" {
		if err := registry.ValidateServiceURL(s.RPCURL); err != nil {
			return fmt.Errorf("rpc url: %w", err)
		}
	}
	if s.SyncURL != "" {
		if err := registry.ValidateServiceURL(s.SyncURL); err != nil {
			return fmt.Errorf("sync url: %w", err)
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, raw, name string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}

func setAddress(dst *common.Address, raw, name string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	addr, err := registry.ParseAddress(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = addr
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
