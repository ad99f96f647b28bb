package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	core "conquest/domain"
	"conquest/utils"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config はサーバー全体の設定。conquest.yaml から読み、環境変数で上書きできる。
type Config struct {
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	StateFile string `yaml:"state_file"`
	// Origins は websocket を許可する Origin のホストパターン
	Origins []string `yaml:"origins"`

	TickInterval time.Duration `yaml:"tick_interval"`

	Galaxy  GalaxyConfig  `yaml:"galaxy"`
	Focus   FocusConfig   `yaml:"focus"`
	Combat  CombatConfig  `yaml:"combat"`
	Session SessionConfig `yaml:"session"`
}

type GalaxyConfig struct {
	Seed      string `yaml:"seed"`
	Density   uint8  `yaml:"density"`
	CacheSize int    `yaml:"cache_size"`
}

type FocusConfig struct {
	CellSize          float64 `yaml:"cell_size"`
	MaxArea           int64   `yaml:"max_area"`
	RefreshEveryTicks int     `yaml:"refresh_every_ticks"`
}

type CombatConfig struct {
	AttackStrength   uint64 `yaml:"attack_strength"`
	AcquisitionFleet uint64 `yaml:"acquisition_fleet"`
	Reinforcement    uint64 `yaml:"reinforcement"`
}

type SessionConfig struct {
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	CameraRate   float64       `yaml:"camera_rate"`
	CameraBurst  int           `yaml:"camera_burst"`
}

func Defaults() Config {
	combat := core.DefaultCombatConfig()
	return Config{
		Listen:       "localhost:9090",
		LogLevel:     "info",
		TickInterval: 50 * time.Millisecond,
		Galaxy: GalaxyConfig{
			Seed:      "conquest",
			Density:   24,
			CacheSize: 1 << 16,
		},
		Focus: FocusConfig{
			CellSize:          core.DefaultCellSize,
			MaxArea:           64 * 64,
			RefreshEveryTicks: 100,
		},
		Combat: CombatConfig{
			AttackStrength:   combat.AttackStrength,
			AcquisitionFleet: combat.AcquisitionFleet,
			Reinforcement:    combat.Reinforcement,
		},
		Session: SessionConfig{
			IdleTimeout:  30 * time.Second,
			PingInterval: 10 * time.Second,
			CameraRate:   20,
			CameraBurst:  5,
		},
	}
}

// Load は path の YAML をデフォルト値の上に重ねて読み、環境変数を適用する。
// path が空ならデフォルト値と環境変数だけを使う。
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Listen = utils.GetEnvDefault("CONQUEST_LISTEN", c.Listen)
	c.LogLevel = utils.GetEnvDefault("LOG_LEVEL", c.LogLevel)
	c.StateFile = utils.GetEnvDefault("STATE_FILE", c.StateFile)
	c.Galaxy.Seed = utils.GetEnvDefault("GALAXY_SEED", c.Galaxy.Seed)
	c.Session.IdleTimeout = utils.GetEnvDuration("IDLE_TIMEOUT", c.Session.IdleTimeout)
}

func (c Config) Validate() error {
	switch {
	case c.Listen == "":
		return fmt.Errorf("%w: listen is empty", ErrInvalidConfig)
	case c.TickInterval <= 0:
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalidConfig)
	case c.Galaxy.Density == 0:
		return fmt.Errorf("%w: galaxy.density must be positive", ErrInvalidConfig)
	case c.Focus.CellSize <= 0:
		return fmt.Errorf("%w: focus.cell_size must be positive", ErrInvalidConfig)
	case c.Focus.MaxArea <= 0:
		return fmt.Errorf("%w: focus.max_area must be positive", ErrInvalidConfig)
	case c.Focus.RefreshEveryTicks < 0:
		return fmt.Errorf("%w: focus.refresh_every_ticks must not be negative", ErrInvalidConfig)
	case c.Combat.AttackStrength == 0 || c.Combat.AcquisitionFleet == 0:
		return fmt.Errorf("%w: combat constants must be positive", ErrInvalidConfig)
	case c.Session.CameraRate <= 0 || c.Session.CameraBurst <= 0:
		return fmt.Errorf("%w: session camera rate must be positive", ErrInvalidConfig)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel は log_level を slog.Level に変換する
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	return level, nil
}

func (c Config) CombatConfig() core.CombatConfig {
	return core.CombatConfig{
		AttackStrength:   c.Combat.AttackStrength,
		AcquisitionFleet: c.Combat.AcquisitionFleet,
		Reinforcement:    c.Combat.Reinforcement,
	}
}
