package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del backtester.
type Config struct {
	Backtest  BacktestConfig  `yaml:"backtest"`
	Risk      RiskConfig      `yaml:"risk"`
	Synthesis SynthesisConfig `yaml:"synthesis"`
	Data      DataConfig      `yaml:"data"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

// BacktestConfig controla el run: capital, costes, ventana y estrategia.
type BacktestConfig struct {
	InitialCapital float64            `yaml:"initial_capital"`
	SlippagePct    float64            `yaml:"slippage_pct"`
	FeeModel       string             `yaml:"fee_model"` // none | flat | polymarket
	RiskFreeRate   float64            `yaml:"risk_free_rate"`
	Interval       string             `yaml:"interval"`
	Start          string             `yaml:"start"` // 2006-01-02 o RFC3339
	End            string             `yaml:"end"`
	Markets        []string           `yaml:"markets"`
	Strategy       string             `yaml:"strategy"`
	Params         map[string]float64 `yaml:"params"`
	SweepWorkers   int                `yaml:"sweep_workers"`
}

// RiskConfig contiene los límites de riesgo y el método de sizing.
type RiskConfig struct {
	PositionSizing  string  `yaml:"position_sizing"` // fixed_amount | fixed_percent | kelly | fractional_kelly
	FixedAmount     float64 `yaml:"fixed_amount"`
	FixedPercent    float64 `yaml:"fixed_percent"`
	MaxPositionPct  float64 `yaml:"max_position_pct"`
	MaxDailyLossPct float64 `yaml:"max_daily_loss_pct"`
	StopLossPct     float64 `yaml:"stop_loss_pct"`
	EnableStopLoss  bool    `yaml:"enable_stop_loss"`
	MaxKelly        float64 `yaml:"max_kelly"`
}

// SynthesisConfig parametriza el orderbook sintético.
type SynthesisConfig struct {
	DepthLevels      int           `yaml:"depth_levels"`
	SpreadMultiplier float64       `yaml:"spread_multiplier"`
	MinSpread        float64       `yaml:"min_spread"`
	MaxSpread        float64       `yaml:"max_spread"`
	BaseDepthUSDC    float64       `yaml:"base_depth_usdc"`
	LiquidityDecay   float64       `yaml:"liquidity_decay"`
	TradesLookback   time.Duration `yaml:"trades_lookback"`
}

// DataConfig controla la cache local de datos de mercado.
type DataConfig struct {
	CacheDir string `yaml:"cache_dir"`
	UseCache bool   `yaml:"use_cache"`
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	DataBase  string `yaml:"data_base"`
}

// StorageConfig controla dónde se persisten los runs.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default devuelve la configuración por defecto.
func Default() Config {
	return Config{
		Backtest: BacktestConfig{
			InitialCapital: 10000,
			FeeModel:       "none",
			Interval:       "1h",
			Strategy:       "buy_and_hold",
			SweepWorkers:   4,
		},
		Risk: RiskConfig{
			PositionSizing:  "fixed_percent",
			FixedAmount:     100,
			FixedPercent:    0.1,
			MaxPositionPct:  0.25,
			MaxDailyLossPct: 0.1,
			StopLossPct:     0.05,
			EnableStopLoss:  true,
			MaxKelly:        0.25,
		},
		Synthesis: SynthesisConfig{
			DepthLevels:      10,
			SpreadMultiplier: 1.0,
			MinSpread:        0.01,
			MaxSpread:        0.08,
			BaseDepthUSDC:    5000,
			LiquidityDecay:   0.85,
			TradesLookback:   6 * time.Hour,
		},
		Data: DataConfig{
			CacheDir: "data",
			UseCache: true,
		},
		API: APIConfig{
			CLOBBase:  "https://clob.polymarket.com",
			GammaBase: "https://gamma-api.polymarket.com",
			DataBase:  "https://data-api.polymarket.com",
		},
		Storage: StorageConfig{DSN: "pmbacktest.db"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las keys ausentes del YAML conservan el valor por defecto; las variables de
// entorno sobreescriben ambos. Con path vacío solo se aplican defaults y entorno.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate comprueba los valores que no valida ningún otro paquete.
func (c *Config) Validate() error {
	switch c.Backtest.FeeModel {
	case "none", "flat", "polymarket":
	default:
		return fmt.Errorf("backtest.fee_model %q: must be none|flat|polymarket", c.Backtest.FeeModel)
	}
	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if c.Backtest.SweepWorkers < 1 {
		return fmt.Errorf("backtest.sweep_workers must be >= 1")
	}
	if _, _, err := c.Window(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text|json", c.Log.Format)
	}
	return nil
}

// Window devuelve la ventana [start, end] del backtest. Las fechas vacías
// devuelven tiempos cero; el caller decide el default.
func (c *Config) Window() (start, end time.Time, err error) {
	if start, err = ParseTime(c.Backtest.Start); err != nil {
		return start, end, fmt.Errorf("backtest.start: %w", err)
	}
	if end, err = ParseTime(c.Backtest.End); err != nil {
		return start, end, fmt.Errorf("backtest.end: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return start, end, fmt.Errorf("backtest.end must be after backtest.start")
	}
	return start, end, nil
}

// ParseTime acepta "2006-01-02", "2006-01-02T15:04" y RFC3339. Siempre en UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PMBACKTEST_CACHE_DIR"); v != "" {
		cfg.Data.CacheDir = v
	}
	if v := os.Getenv("PMBACKTEST_DB"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults rellena los strings que el YAML dejó explícitamente vacíos.
func setDefaults(cfg *Config) {
	def := Default()
	if cfg.Backtest.FeeModel == "" {
		cfg.Backtest.FeeModel = def.Backtest.FeeModel
	}
	if cfg.Backtest.Interval == "" {
		cfg.Backtest.Interval = def.Backtest.Interval
	}
	if cfg.Backtest.Strategy == "" {
		cfg.Backtest.Strategy = def.Backtest.Strategy
	}
	if cfg.Backtest.SweepWorkers <= 0 {
		cfg.Backtest.SweepWorkers = def.Backtest.SweepWorkers
	}
	if cfg.Risk.PositionSizing == "" {
		cfg.Risk.PositionSizing = def.Risk.PositionSizing
	}
	if cfg.Synthesis.TradesLookback <= 0 {
		cfg.Synthesis.TradesLookback = def.Synthesis.TradesLookback
	}
	if cfg.Data.CacheDir == "" {
		cfg.Data.CacheDir = def.Data.CacheDir
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = def.Storage.DSN
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}
}
