// Package config loads service configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dvloznov/vendor-insights/internal/category"
	"github.com/dvloznov/vendor-insights/internal/window"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VENDOR_INSIGHTS_GCP_PROJECT_ID.
const EnvPrefix = "VENDOR_INSIGHTS"

// Data sources a run can extract from.
const (
	SourceBigQuery = "bigquery"
	SourcePostgres = "postgres"
	SourceCSV      = "csv"
)

// Config holds application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	GCP      GCPConfig      `mapstructure:"gcp"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Source   string         `mapstructure:"source"`
	CSV      CSVConfig      `mapstructure:"csv"`
	API      APIConfig      `mapstructure:"api"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Policy   PolicyConfig   `mapstructure:"policy"`
	RevShare RevShareConfig `mapstructure:"revshare"`
	Notion   NotionConfig   `mapstructure:"notion"`
	Insights InsightsConfig `mapstructure:"insights"`
}

// LogConfig selects logger level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GCPConfig locates the BigQuery dataset and the report bucket.
type GCPConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
	Bucket    string `mapstructure:"bucket"`
	// ReportPrefix is the object prefix reports are written under.
	ReportPrefix string `mapstructure:"report_prefix"`
}

// PostgresConfig holds the transactional source connection.
type PostgresConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// DSN returns a postgres connection URL.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// CSVConfig locates the extracts read by csv runs. Paths are local files
// or gs:// URIs.
type CSVConfig struct {
	Transactions string `mapstructure:"transactions"`
	Invoices     string `mapstructure:"invoices"`
	Companies    string `mapstructure:"companies"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	Port       string `mapstructure:"port"`
	CORSOrigin string `mapstructure:"cors_origin"`
	AuthToken  string `mapstructure:"auth_token"`
}

// WorkerConfig sizes the in-memory job queue.
type WorkerConfig struct {
	QueueSize  int `mapstructure:"queue_size"`
	Workers    int `mapstructure:"workers"`
	MaxRetries int `mapstructure:"max_retries"`
}

// PolicyConfig exposes the categorization thresholds.
type PolicyConfig struct {
	Intake6M        category.IntakeThresholds `mapstructure:"intake_6m"`
	Intake12M       category.IntakeThresholds `mapstructure:"intake_12m"`
	Intake18M       category.IntakeThresholds `mapstructure:"intake_18m"`
	HighRatio       float64                   `mapstructure:"high_ratio"`
	MediumRatio     float64                   `mapstructure:"medium_ratio"`
	NewIntakeMonths int                       `mapstructure:"new_intake_months"`
	ChurnMonths     int                       `mapstructure:"churn_months"`
	ChurnDryMonths  int                       `mapstructure:"churn_dry_months"`
	AtRiskDryMonths int                       `mapstructure:"at_risk_dry_months"`
}

// CategoryPolicy converts the configured thresholds into a validated policy.
func (p PolicyConfig) CategoryPolicy() (category.Policy, error) {
	pol := category.DefaultPolicy()
	pol.Intake = map[int]category.IntakeThresholds{
		window.SixMonths:      p.Intake6M,
		window.TwelveMonths:   p.Intake12M,
		window.EighteenMonths: p.Intake18M,
	}
	pol.HighRatio = p.HighRatio
	pol.MediumRatio = p.MediumRatio
	pol.NewIntakeMonths = p.NewIntakeMonths
	pol.ChurnMonths = p.ChurnMonths
	pol.ChurnDryMonths = p.ChurnDryMonths
	pol.AtRiskDryMonths = p.AtRiskDryMonths
	if err := pol.Validate(); err != nil {
		return category.Policy{}, fmt.Errorf("CategoryPolicy: %w", err)
	}
	return pol, nil
}

// RevShareConfig points at an optional YAML rule table override.
type RevShareConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// NotionConfig is used by the summary sync.
type NotionConfig struct {
	Token      string `mapstructure:"token"`
	DatabaseID string `mapstructure:"database_id"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// InsightsConfig enables the generated run narrative.
type InsightsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
}

// Load reads configuration from file and env. The file is taken from
// VENDOR_INSIGHTS_CONFIG when set, otherwise config.yaml in the working
// directory if present.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Credentials follow the variable names the warehouse tooling already uses.
	for key, env := range map[string]string{
		"postgres.user":      "PG_USER",
		"postgres.password":  "PG_PASSWORD",
		"postgres.host":      "PG_HOST",
		"postgres.database":  "PG_DB",
		"gcp.bucket":         "GCS_BUCKET",
		"notion.token":       "NOTION_TOKEN",
		"notion.database_id": "NOTION_DATABASE_ID",
	} {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return Config{}, fmt.Errorf("Load: bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || os.Getenv(EnvPrefix+"_CONFIG") != "" {
			return Config{}, fmt.Errorf("Load: read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("Load: unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	switch c.Source {
	case SourceBigQuery, SourcePostgres, SourceCSV:
	default:
		return fmt.Errorf("Validate: unknown source %q", c.Source)
	}
	if c.Source == SourceCSV && c.CSV.Transactions == "" {
		return fmt.Errorf("Validate: csv.transactions is required for the csv source")
	}
	if c.GCP.ProjectID == "" || c.GCP.Dataset == "" {
		return fmt.Errorf("Validate: gcp.project_id and gcp.dataset are required")
	}
	if c.Worker.Workers < 1 || c.Worker.QueueSize < 1 {
		return fmt.Errorf("Validate: worker.workers and worker.queue_size must be positive")
	}
	if _, err := c.Policy.CategoryPolicy(); err != nil {
		return fmt.Errorf("Validate: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("gcp.project_id", "studious-union-470122-v7")
	v.SetDefault("gcp.dataset", "vendor_insights")
	v.SetDefault("gcp.bucket", "")
	v.SetDefault("gcp.report_prefix", "reports")

	v.SetDefault("postgres.user", "")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.database", "")
	v.SetDefault("postgres.sslmode", "require")
	v.SetDefault("postgres.max_conns", 4)

	v.SetDefault("source", SourceBigQuery)

	v.SetDefault("csv.transactions", "")
	v.SetDefault("csv.invoices", "")
	v.SetDefault("csv.companies", "")

	v.SetDefault("api.port", "8080")
	v.SetDefault("api.cors_origin", "*")
	v.SetDefault("api.auth_token", "")

	v.SetDefault("worker.queue_size", 100)
	v.SetDefault("worker.workers", 5)
	v.SetDefault("worker.max_retries", 3)

	def := category.DefaultPolicy()
	for size, key := range map[int]string{
		window.SixMonths:      "policy.intake_6m",
		window.TwelveMonths:   "policy.intake_12m",
		window.EighteenMonths: "policy.intake_18m",
	} {
		v.SetDefault(key+".regular", def.Intake[size].Regular)
		v.SetDefault(key+".medium", def.Intake[size].Medium)
	}
	v.SetDefault("policy.high_ratio", def.HighRatio)
	v.SetDefault("policy.medium_ratio", def.MediumRatio)
	v.SetDefault("policy.new_intake_months", def.NewIntakeMonths)
	v.SetDefault("policy.churn_months", def.ChurnMonths)
	v.SetDefault("policy.churn_dry_months", def.ChurnDryMonths)
	v.SetDefault("policy.at_risk_dry_months", def.AtRiskDryMonths)

	v.SetDefault("revshare.rules_file", "")

	v.SetDefault("notion.token", "")
	v.SetDefault("notion.database_id", "")
	v.SetDefault("notion.batch_size", 100)

	v.SetDefault("insights.enabled", false)
	v.SetDefault("insights.model", "gemini-2.5-flash")
}
