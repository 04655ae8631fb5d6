package tuning

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "DEEPSTORE_"

type Tuning struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`

	// Radius (Manhattan) around a container that Reclaim scans for loose piles.
	ReclaimRadius int `yaml:"reclaim_radius" env:"RECLAIM_RADIUS"`
	// GodMode lists every counted material in build menus even when none is on the map.
	GodMode       bool   `yaml:"god_mode" env:"GOD_MODE"`
	PlayerFaction string `yaml:"player_faction" env:"PLAYER_FACTION"`
	// Kind withdrawn when a repair job finds no spare part on the map.
	RepairComponentKind string `yaml:"repair_component_kind" env:"REPAIR_COMPONENT_KIND"`

	Hooks    Hooks    `yaml:"hooks"`
	Ledger   Ledger   `yaml:"ledger"`
	Observer Observer `yaml:"observer"`
	Archive  Archive  `yaml:"archive"`
}

type Hooks struct {
	// Disabled events defer to native host behaviour.
	Disabled []string `yaml:"disabled" env:"HOOKS_DISABLED" envSeparator:","`
}

type Ledger struct {
	Dir       string `yaml:"dir" env:"LEDGER_DIR"`
	IndexPath string `yaml:"index_path" env:"LEDGER_INDEX"`
	DisableDB bool   `yaml:"disable_db" env:"LEDGER_DISABLE_DB"`
}

type Observer struct {
	Listen string `yaml:"listen" env:"OBSERVER_LISTEN"`
}

// Archive mirrors finished ledger files to an S3-compatible bucket. An empty
// bucket disables it. Credentials are read from the environment only.
type Archive struct {
	Bucket          string `yaml:"bucket" env:"ARCHIVE_BUCKET"`
	Endpoint        string `yaml:"endpoint" env:"ARCHIVE_ENDPOINT"`
	Region          string `yaml:"region" env:"ARCHIVE_REGION"`
	Prefix          string `yaml:"prefix" env:"ARCHIVE_PREFIX"`
	PathStyle       bool   `yaml:"path_style" env:"ARCHIVE_PATH_STYLE"`
	Prune           bool   `yaml:"prune" env:"ARCHIVE_PRUNE"`
	AccessKeyID     string `yaml:"-" json:"-" env:"ARCHIVE_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"-" json:"-" env:"ARCHIVE_SECRET_ACCESS_KEY"`
}

func Defaults() Tuning {
	return Tuning{
		LogLevel:            "info",
		ReclaimRadius:       2,
		PlayerFaction:       "PLAYER",
		RepairComponentKind: "COMPONENT",
		Ledger: Ledger{
			Dir: "./data/ledger",
		},
		Observer: Observer{
			Listen: ":8080",
		},
	}
}

// Load reads a tuning file over Defaults and then applies environment overrides.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := ApplyEnv(&t); err != nil {
		return t, err
	}
	return t, t.Validate()
}

func ApplyEnv(t *Tuning) error {
	if err := env.ParseWithOptions(t, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (t Tuning) Validate() error {
	if t.ReclaimRadius < 0 {
		return fmt.Errorf("tuning: reclaim_radius must be >= 0, got %d", t.ReclaimRadius)
	}
	if t.PlayerFaction == "" {
		return fmt.Errorf("tuning: player_faction is required")
	}
	return nil
}

func (t Tuning) HookDisabled(name string) bool {
	for _, d := range t.Hooks.Disabled {
		if d == name {
			return true
		}
	}
	return false
}
