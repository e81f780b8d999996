// Package config loads and validates the reconciler configuration.
package config

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone database for containers without one

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/supervision-reconciler/internal/model"
)

// ErrInvalidConfig is the root of every configuration failure. A run must not
// start when Load returns it.
var ErrInvalidConfig = eris.New("config: invalid")

// DateLayout is the layout of period start and end dates.
const DateLayout = "2006-01-02"

// Config holds the full application configuration.
type Config struct {
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ReconcileConfig tunes resolution, quota policy and redistribution.
type ReconcileConfig struct {
	MaxToleranceKM            float64                `yaml:"max_tolerance_km" mapstructure:"max_tolerance_km" validate:"gt=0"`
	ConfidenceTiers           []TierConfig           `yaml:"confidence_tiers" mapstructure:"confidence_tiers" validate:"required,min=1,dive"`
	ManualTextConfidence      float64                `yaml:"manual_text_confidence" mapstructure:"manual_text_confidence" validate:"gt=0,lte=1"`
	ManualTextMinScore        float64                `yaml:"manual_text_min_score" mapstructure:"manual_text_min_score" validate:"gt=0,lte=1"`
	TemporalPairingConfidence float64                `yaml:"temporal_pairing_confidence" mapstructure:"temporal_pairing_confidence" validate:"gt=0,lte=1"`
	DeficitDefaultConfidence  float64                `yaml:"deficit_default_confidence" mapstructure:"deficit_default_confidence" validate:"gt=0,lte=1"`
	Timezone                  string                 `yaml:"timezone" mapstructure:"timezone" validate:"required"`
	Workers                   int                    `yaml:"workers" mapstructure:"workers" validate:"gte=1"`
	QuotaLocal                QuotaConfig            `yaml:"quota_local" mapstructure:"quota_local"`
	QuotaForanea              QuotaConfig            `yaml:"quota_foranea" mapstructure:"quota_foranea"`
	QuotaOverrides            map[string]QuotaConfig `yaml:"quota_overrides" mapstructure:"quota_overrides" validate:"dive,keys,numeric,endkeys"`
	RedistributionPairs       []PairConfig           `yaml:"redistribution_pairs" mapstructure:"redistribution_pairs" validate:"dive"`
	Periods                   []PeriodConfig         `yaml:"periods" mapstructure:"periods" validate:"dive"`
}

// TierConfig is one geo confidence tier.
type TierConfig struct {
	RadiusKM   float64 `yaml:"radius_km" mapstructure:"radius_km" validate:"gt=0"`
	Confidence float64 `yaml:"confidence" mapstructure:"confidence" validate:"gt=0,lte=1"`
}

// QuotaConfig is an expected count per inspection type.
type QuotaConfig struct {
	Operational int `yaml:"operational" mapstructure:"operational" validate:"gte=0"`
	Safety      int `yaml:"safety" mapstructure:"safety" validate:"gte=0"`
}

// Quota converts q into the model type.
func (q QuotaConfig) Quota() model.Quota {
	return model.Quota{Operational: q.Operational, Safety: q.Safety}
}

// PairConfig routes surplus submissions from Source to Target.
type PairConfig struct {
	Source int `yaml:"source" mapstructure:"source" validate:"gt=0"`
	Target int `yaml:"target" mapstructure:"target" validate:"gt=0,nefield=Source"`
}

// PeriodConfig is an explicit quota period. Dates are YYYY-MM-DD, inclusive.
type PeriodConfig struct {
	Name           string `yaml:"name" mapstructure:"name" validate:"required"`
	Classification string `yaml:"classification" mapstructure:"classification" validate:"required"`
	Start          string `yaml:"start" mapstructure:"start" validate:"required,datetime=2006-01-02"`
	End            string `yaml:"end" mapstructure:"end" validate:"required,datetime=2006-01-02"`
}

// CatalogConfig locates the store reference file (.yaml or .csv).
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SourceConfig locates the submission exports or the Zenput API.
type SourceConfig struct {
	OperationalPath string       `yaml:"operational_path" mapstructure:"operational_path"`
	SafetyPath      string       `yaml:"safety_path" mapstructure:"safety_path"`
	Zenput          ZenputConfig `yaml:"zenput" mapstructure:"zenput"`
}

// ZenputConfig holds Zenput API settings.
type ZenputConfig struct {
	BaseURL           string      `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	Token             string      `yaml:"token" mapstructure:"token"`
	OperationalFormID int         `yaml:"operational_form_id" mapstructure:"operational_form_id" validate:"gte=0"`
	SafetyFormID      int         `yaml:"safety_form_id" mapstructure:"safety_form_id" validate:"gte=0"`
	PageSize          int         `yaml:"page_size" mapstructure:"page_size" validate:"gte=1,lte=500"`
	RPS               float64     `yaml:"rps" mapstructure:"rps" validate:"gt=0"`
	TimeoutSecs       int         `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gte=1"`
	Retry             RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures backoff for source calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms" validate:"gte=0"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms" validate:"gte=0"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier" validate:"gte=0"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction" validate:"gte=0,lte=1"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// Load reads .env, config.yaml in the working directory and RECONCILER_*
// environment variables, then validates the result.
func Load() (*Config, error) {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(ErrInvalidConfig, "config: unmarshal: "+err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reconcile.max_tolerance_km", 2.0)
	v.SetDefault("reconcile.confidence_tiers", []map[string]any{
		{"radius_km": 0.5, "confidence": 0.9},
		{"radius_km": 1.0, "confidence": 0.8},
		{"radius_km": 2.0, "confidence": 0.7},
	})
	v.SetDefault("reconcile.manual_text_confidence", 0.8)
	v.SetDefault("reconcile.manual_text_min_score", 0.3)
	v.SetDefault("reconcile.temporal_pairing_confidence", 0.6)
	v.SetDefault("reconcile.deficit_default_confidence", 0.6)
	v.SetDefault("reconcile.timezone", "America/Monterrey")
	v.SetDefault("reconcile.workers", 8)
	v.SetDefault("reconcile.quota_local.operational", 4)
	v.SetDefault("reconcile.quota_local.safety", 4)
	v.SetDefault("reconcile.quota_foranea.operational", 2)
	v.SetDefault("reconcile.quota_foranea.safety", 2)
	v.SetDefault("catalog.path", "stores.yaml")
	v.SetDefault("source.zenput.base_url", "https://www.zenput.com/api/v3")
	v.SetDefault("source.zenput.operational_form_id", 877138)
	v.SetDefault("source.zenput.safety_form_id", 877139)
	v.SetDefault("source.zenput.page_size", 100)
	v.SetDefault("source.zenput.rps", 2.0)
	v.SetDefault("source.zenput.timeout_secs", 30)
	v.SetDefault("source.zenput.retry.max_attempts", 4)
	v.SetDefault("source.zenput.retry.initial_backoff_ms", 500)
	v.SetDefault("source.zenput.retry.max_backoff_ms", 10000)
	v.SetDefault("source.zenput.retry.multiplier", 2.0)
	v.SetDefault("source.zenput.retry.jitter_fraction", 0.25)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reconciler.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

var validate = validator.New()

// Validate runs the struct tag rules and the cross-field checks tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var msgs []string
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
			}
		} else {
			msgs = append(msgs, err.Error())
		}
		return eris.Wrapf(ErrInvalidConfig, "config: %s", strings.Join(msgs, "; "))
	}

	r := c.Reconcile
	for i := 1; i < len(r.ConfidenceTiers); i++ {
		if r.ConfidenceTiers[i].RadiusKM <= r.ConfidenceTiers[i-1].RadiusKM {
			return eris.Wrapf(ErrInvalidConfig, "config: confidence_tiers[%d] radius must be greater than the previous tier", i)
		}
	}
	if last := r.ConfidenceTiers[len(r.ConfidenceTiers)-1]; r.MaxToleranceKM > last.RadiusKM {
		return eris.Wrapf(ErrInvalidConfig, "config: max_tolerance_km %v exceeds the widest tier (%v km)", r.MaxToleranceKM, last.RadiusKM)
	}
	if _, err := r.Location(); err != nil {
		return err
	}
	if _, err := r.PeriodDefs(); err != nil {
		return err
	}
	if _, err := r.Overrides(); err != nil {
		return err
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.Wrap(ErrInvalidConfig, "config: store.database_url is required for postgres")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return eris.Wrapf(ErrInvalidConfig, "config: log.level %q", c.Log.Level)
	}
	return nil
}

// Location loads the configured time zone.
func (r ReconcileConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidConfig, "config: timezone %q: %v", r.Timezone, err)
	}
	return loc, nil
}

// PeriodDefs parses the explicit periods.
func (r ReconcileConfig) PeriodDefs() ([]model.Period, error) {
	out := make([]model.Period, 0, len(r.Periods))
	for _, p := range r.Periods {
		class, ok := model.ParseClassification(p.Classification)
		if !ok {
			return nil, eris.Wrapf(ErrInvalidConfig, "config: period %q: unknown classification %q", p.Name, p.Classification)
		}
		start, err := time.Parse(DateLayout, p.Start)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidConfig, "config: period %q: start %q", p.Name, p.Start)
		}
		end, err := time.Parse(DateLayout, p.End)
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidConfig, "config: period %q: end %q", p.Name, p.End)
		}
		out = append(out, model.Period{Name: p.Name, Classification: class, Start: start, End: end})
	}
	return out, nil
}

// Overrides returns the per-store quota overrides keyed by store ID.
func (r ReconcileConfig) Overrides() (map[int]model.Quota, error) {
	out := make(map[int]model.Quota, len(r.QuotaOverrides))
	for k, q := range r.QuotaOverrides {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id <= 0 {
			return nil, eris.Wrapf(ErrInvalidConfig, "config: quota_overrides key %q is not a store id", k)
		}
		out[id] = q.Quota()
	}
	return out, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
