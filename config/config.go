package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"lagflode/textproc"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	RiksdagenBaseURL  string `envconfig:"RIKSDAGEN_BASE_URL" default:"https://data.riksdagen.se"`
	RiksdagenPageSize int    `envconfig:"RIKSDAGEN_PAGE_SIZE" default:"100"`
	SFSBaseURL        string `envconfig:"SFS_BASE_URL" default:"https://svenskforfattningssamling.se"`

	CrawlDelayMS       int `envconfig:"CRAWL_DELAY_MS" default:"200"`
	HTTPTimeoutSeconds int `envconfig:"HTTP_TIMEOUT_SECONDS" default:"30"`

	CronCrawlSchedule     string `envconfig:"CRON_CRAWL_SCHEDULE" default:"0 3 * * *"`
	CronAmendmentSchedule string `envconfig:"CRON_AMENDMENT_SCHEDULE" default:"*/30 * * * *"`
	AmendmentBatchSize    int    `envconfig:"AMENDMENT_BATCH_SIZE" default:"20"`
	MaxParseAttempts      int    `envconfig:"MAX_PARSE_ATTEMPTS" default:"3"`

	ChunkMaxTokens int     `envconfig:"CHUNK_MAX_TOKENS" default:"512"`
	TokensPerWord  float64 `envconfig:"TOKENS_PER_WORD" default:"1.3"`

	// Allow-Listen der Silbentrennungs-Reparatur, kommagetrennt
	HyphenConjunctions []string `envconfig:"HYPHEN_CONJUNCTIONS" default:"och,eller,samt,respektive,resp.,men,utan"`
	HyphenPrefixes     []string `envconfig:"HYPHEN_PREFIXES" default:"icke,eu,ees,fn,sfs,ce,it,tv,gd,bl.a,m.fl,t.ex,inkl,exkl"`

	S3Key    string `envconfig:"S3_KEY"`
	S3Secret string `envconfig:"S3_SECRET"`
	S3URL    string `envconfig:"S3_URL"`
	S3Region string `envconfig:"S3_REGION" default:"eu-north-1"`
	S3Bucket string `envconfig:"S3_BUCKET"`

	DebugMaxRecords int `envconfig:"DEBUG_MAX_RECORDS" default:"0"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// HyphenRules baut die Silbentrennungsregeln aus den konfigurierten Listen.
func (c *Config) HyphenRules() textproc.HyphenRules {
	if len(c.HyphenConjunctions) == 0 && len(c.HyphenPrefixes) == 0 {
		return textproc.DefaultHyphenRules()
	}
	return textproc.NewHyphenRules(c.HyphenConjunctions, c.HyphenPrefixes)
}

// CrawlDelay ist der Mindestabstand zwischen zwei Requests eines Crawl-Laufs.
func (c *Config) CrawlDelay() time.Duration {
	return time.Duration(c.CrawlDelayMS) * time.Millisecond
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// S3Enabled: ohne Bucket werden Quell-PDFs nicht archiviert.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Key != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
