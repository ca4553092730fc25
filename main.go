package main

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lagflode/config"
	"lagflode/providers/riksdagen"
	"lagflode/providers/sfs"
	"lagflode/services"
	"lagflode/storage"
)

var (
	discoveredCounter         *prometheus.CounterVec
	crawlFailuresCounter      prometheus.Counter
	amendmentsParsedCounter   *prometheus.CounterVec
	validationFailuresCounter prometheus.Counter
)

func init() {
	discoveredCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sfs_documents_discovered_total",
			Help: "Total number of SFS documents discovered by the index crawler.",
		},
		[]string{"type"},
	)
	crawlFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sfs_crawl_failures_total",
			Help: "Total number of failed index listings and document fetches.",
		},
	)
	amendmentsParsedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amendments_parsed_total",
			Help: "Total number of processed amendment documents by final parse status.",
		},
		[]string{"status"},
	)
	validationFailuresCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "canonical_validation_failures_total",
			Help: "Total number of documents rejected by canonical validation.",
		},
	)
	prometheus.MustRegister(discoveredCounter, crawlFailuresCounter, amendmentsParsedCounter, validationFailuresCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// yearLocks verhindert zwei gleichzeitige Läufe auf demselben Watermark.
type yearLocks struct {
	mu      sync.Mutex
	running map[int]bool
}

func (l *yearLocks) acquire(year int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running[year] {
		return false
	}
	l.running[year] = true
	return true
}

func (l *yearLocks) release(year int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.running, year)
}

// app bündelt die Services für Routen und Cron-Jobs.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *services.GormStore
	crawler   *services.Crawler
	processor *services.AmendmentProcessor
	documents *services.DocumentService
	locks     *yearLocks
}

// runCrawl führt einen Jahreslauf aus; läuft für das Jahr bereits einer, ist das Ergebnis errCrawlRunning.
func (a *app) runCrawl(ctx context.Context, year int, force bool) (*services.CrawlResult, error) {
	if !a.locks.acquire(year) {
		return nil, errCrawlRunning
	}
	defer a.locks.release(year)
	return a.crawlLocked(ctx, year, force)
}

// crawlLocked setzt voraus, dass der Aufrufer das Jahr gesperrt hat.
func (a *app) crawlLocked(ctx context.Context, year int, force bool) (*services.CrawlResult, error) {
	res, err := a.crawler.CrawlYear(ctx, year, force)
	if res != nil {
		for typ, n := range res.ByType {
			discoveredCounter.WithLabelValues(string(typ)).Add(float64(n))
		}
		crawlFailuresCounter.Add(float64(len(res.Failures)))
	}
	if err != nil {
		crawlFailuresCounter.Inc()
	}
	return res, err
}

func (a *app) runProcessing(ctx context.Context, limit int) (*services.ProcessSummary, error) {
	sum, err := a.processor.ProcessPending(ctx, limit)
	if sum != nil {
		amendmentsParsedCounter.WithLabelValues("COMPLETED").Add(float64(sum.Completed))
		amendmentsParsedCounter.WithLabelValues("FAILED").Add(float64(sum.Failed))
	}
	return sum, err
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	if err := services.AutoMigrate(db); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}
	store := services.NewGormStore(db)

	// Quellen
	index := riksdagen.NewFetcher(cfg, logging)
	pages := sfs.NewFetcher(cfg, logging)

	var archive services.PDFArchive
	if cfg.S3Enabled() {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		archive = storage.NewArchive(s3Client, cfg.S3Bucket)
	} else {
		logging.Warn("S3 not configured, source PDFs will not be archived")
	}

	a := &app{
		cfg:       cfg,
		log:       logging,
		store:     store,
		crawler:   services.NewCrawler(cfg, store, index, pages, logging),
		processor: services.NewAmendmentProcessor(cfg, store, pages, archive, logging),
		documents: services.NewDocumentService(cfg, store, logging),
		locks:     &yearLocks{running: map[int]bool{}},
	}

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	setupCrawlRoutes(router, a)
	setupAmendmentRoutes(router, a)
	setupDocumentRoutes(router, a)
	setupTransformRoutes(router, a)
	setupChangeRoutes(router, a)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronCrawlSchedule, func() {
		logging.Info("Running scheduled crawl job...")
		res, err := a.runCrawl(context.Background(), time.Now().Year(), false)
		if err != nil {
			logging.Error("Cron crawl failed", zap.Error(err))
			return
		}
		logging.Info("Cron crawl completed", zap.Int("persisted", res.Persisted), zap.Int("pages", res.Pages))
	})
	cronScheduler.AddFunc(cfg.CronAmendmentSchedule, func() {
		logging.Info("Running scheduled amendment job...")
		sum, err := a.runProcessing(context.Background(), cfg.AmendmentBatchSize)
		if err != nil {
			logging.Error("Cron amendment processing failed", zap.Error(err))
			return
		}
		logging.Info("Cron amendment processing completed", zap.Int("completed", sum.Completed), zap.Int("failed", sum.Failed))
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}
