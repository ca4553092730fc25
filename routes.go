package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lagflode/canonical"
	"lagflode/chunking"
	"lagflode/markdown"
	"lagflode/models"
	"lagflode/normalize"
	"lagflode/providers"
	"lagflode/services"
	"lagflode/textproc"
)

var errCrawlRunning = errors.New("crawl for this year is already running")

// queryInt liest einen Integer-Parameter; ungültige Werte ergeben def.
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.Query(key))
	return b
}

// documentError bildet Fehler der Pipeline auf HTTP-Status ab.
func documentError(c *gin.Context, log *zap.Logger, err error) {
	var (
		verr      *canonical.ValidationError
		malformed *canonical.MalformedSourceError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "canonical validation failed", "violations": verr.Violations})
	case errors.As(err, &malformed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": malformed.Error()})
	default:
		log.Error("Document pipeline failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func setupCrawlRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/crawl")

	// POST /crawl/2025?force=true&wait=true
	rg.POST("/:year", func(c *gin.Context) {
		year, err := strconv.Atoi(c.Param("year"))
		if err != nil || year < 1900 || year > 2100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return
		}
		force := queryBool(c, "force")
		if !a.locks.acquire(year) {
			c.JSON(http.StatusConflict, gin.H{"error": errCrawlRunning.Error()})
			return
		}

		if queryBool(c, "wait") {
			defer a.locks.release(year)
			res, err := a.crawlLocked(c.Request.Context(), year, force)
			if err != nil {
				status := http.StatusBadGateway
				if !providers.IsRecoverable(err) {
					status = http.StatusInternalServerError
				}
				c.JSON(status, gin.H{"error": err.Error(), "result": res})
				return
			}
			c.JSON(http.StatusOK, res)
			return
		}

		go func() {
			defer a.locks.release(year)
			res, err := a.crawlLocked(context.Background(), year, force)
			if err != nil {
				a.log.Error("Async crawl failed", zap.Int("year", year), zap.Error(err))
				return
			}
			a.log.Info("Async crawl completed", zap.Int("year", year), zap.Int("persisted", res.Persisted))
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Crawl for " + strconv.Itoa(year) + " triggered."})
	})

	rg.GET("/watermarks", func(c *gin.Context) {
		wms, err := a.store.ListWatermarks(c.Request.Context())
		if err != nil {
			a.log.Error("Listing watermarks failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, wms)
	})
}

func setupAmendmentRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/amendments")

	rg.GET("", func(c *gin.Context) {
		status := models.ParseStatus(strings.ToUpper(c.Query("status")))
		if status != "" && !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		list, err := a.store.ListAmendments(c.Request.Context(), status, queryInt(c, "limit", 100))
		if err != nil {
			a.log.Error("Listing amendments failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, list)
	})

	rg.GET("/:sfs", func(c *gin.Context) {
		am, err := a.store.GetAmendment(c.Request.Context(), c.Param("sfs"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "amendment not found"})
				return
			}
			a.log.Error("Loading amendment failed", zap.String("sfs", c.Param("sfs")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, am)
	})

	rg.POST("/:sfs/retry", func(c *gin.Context) {
		am, err := a.processor.Retry(c.Request.Context(), c.Param("sfs"))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "amendment not found"})
			return
		}
		if am == nil {
			a.log.Error("Retry failed", zap.String("sfs", c.Param("sfs")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		amendmentsParsedCounter.WithLabelValues(string(am.ParseStatus)).Inc()
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "amendment": am})
			return
		}
		c.JSON(http.StatusOK, am)
	})

	// nächste Fassung der Grundförfattning, nicht gespeichert
	rg.GET("/:sfs/preview", func(c *gin.Context) {
		doc, err := services.PreviewAmendment(c.Request.Context(), a.store, a.store, c.Param("sfs"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"document": doc, "html": canonical.RenderHTML(doc)})
		case errors.Is(err, gorm.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "amendment or base law not found"})
		case errors.Is(err, services.ErrNotApplicable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrSectionNotFound), errors.Is(err, services.ErrSectionExists):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			documentError(c, a.log, err)
		}
	})

	// Warteschlange sofort abarbeiten statt auf den Cron-Job zu warten
	rg.POST("/process", func(c *gin.Context) {
		sum, err := a.runProcessing(c.Request.Context(), queryInt(c, "limit", 0))
		if err != nil {
			a.log.Error("Amendment processing failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sum)
	})
}

func setupDocumentRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/documents")

	rg.POST("/ingest", func(c *gin.Context) {
		type IngestRequest struct {
			services.IngestMeta
			Content string `json:"content" binding:"required"`
		}
		var req IngestRequest
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'document_number' and 'content' are required."})
			return
		}
		res, err := a.documents.Ingest(c.Request.Context(), req.Content, req.IngestMeta)
		if err != nil {
			var verr *canonical.ValidationError
			if errors.As(err, &verr) {
				validationFailuresCounter.Inc()
			}
			documentError(c, a.log, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})

	rg.POST("/stubs", func(c *gin.Context) {
		var req struct {
			DocumentNumber string `json:"document_number" binding:"required"`
			Title          string `json:"title"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		doc, err := a.documents.CreateStub(c.Request.Context(), req.DocumentNumber, req.Title)
		if err != nil {
			a.log.Error("Creating stub failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create stub"})
			return
		}
		c.JSON(http.StatusCreated, doc)
	})

	// Stubs nur mit include_stubs=true (Admin)
	rg.GET("", func(c *gin.Context) {
		docs, err := a.store.ListDocuments(c.Request.Context(), queryBool(c, "include_stubs"), queryInt(c, "limit", 100))
		if err != nil {
			a.log.Error("Listing documents failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, docs)
	})

	rg.GET("/:number", func(c *gin.Context) {
		doc, err := a.store.GetDocument(c.Request.Context(), c.Param("number"))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			a.log.Error("Loading document failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	// ?section=3&chapter=2; ohne section alle Änderungen der Grundförfattning
	rg.GET("/:number/history", func(c *gin.Context) {
		hist, err := a.store.SectionHistory(c.Request.Context(), c.Param("number"), c.Query("chapter"), c.Query("section"))
		if err != nil {
			a.log.Error("Loading section history failed", zap.String("number", c.Param("number")), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, hist)
	})
}

// setupTransformRoutes stellt die reinen Pipeline-Stufen ohne Datenbank bereit.
func setupTransformRoutes(router *gin.Engine, a *app) {
	rg := router.Group("/transform")

	rg.POST("/normalize", func(c *gin.Context) {
		var req struct {
			HTML           string                `json:"html" binding:"required"`
			DocumentNumber string                `json:"document_number" binding:"required"`
			Title          string                `json:"title"`
			ContentType    canonical.ContentType `json:"content_type"`
			EffectiveDate  string                `json:"effective_date"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'html' and 'document_number' are required."})
			return
		}
		res, err := normalize.NormalizeDocument(req.HTML, normalize.Metadata{
			DocumentNumber: req.DocumentNumber,
			Title:          req.Title,
			ContentType:    req.ContentType,
			EffectiveDate:  req.EffectiveDate,
			Hyphen:         a.cfg.HyphenRules(),
		})
		if err != nil {
			documentError(c, a.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"pattern":    res.Pattern.String(),
			"document":   res.Document,
			"validation": canonical.Validate(res.Document),
			"html":       canonical.RenderHTML(res.Document),
		})
	})

	rg.POST("/validate", func(c *gin.Context) {
		var doc canonical.Document
		if err := c.ShouldBindJSON(&doc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid canonical document"})
			return
		}
		c.JSON(http.StatusOK, canonical.Validate(&doc))
	})

	rg.POST("/apply", func(c *gin.Context) {
		var req struct {
			Document *canonical.Document    `json:"document" binding:"required"`
			Changes  []models.SectionChange `json:"changes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'document' is required."})
			return
		}
		for _, ch := range req.Changes {
			if !ch.ChangeType.Valid() || ch.Section == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "each change needs a section and change_type INSERT, REPLACE or REPEAL"})
				return
			}
		}
		doc, err := services.ApplySectionChanges(req.Document, req.Changes)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"document": doc, "html": canonical.RenderHTML(doc)})
		case errors.Is(err, services.ErrSectionNotFound), errors.Is(err, services.ErrSectionExists):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			documentError(c, a.log, err)
		}
	})

	// {"html": ...} -> Markdown, {"markdown": ...} -> kanonisches Dokument
	rg.POST("/markdown", func(c *gin.Context) {
		var req struct {
			HTML           string                `json:"html"`
			Markdown       string                `json:"markdown"`
			DocumentNumber string                `json:"document_number"`
			Title          string                `json:"title"`
			ContentType    canonical.ContentType `json:"content_type"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || (req.HTML == "") == (req.Markdown == "") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of 'html' or 'markdown' is required"})
			return
		}
		if req.HTML != "" {
			md, err := markdown.HTMLToMarkdown(req.HTML)
			if err != nil {
				documentError(c, a.log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"markdown": md})
			return
		}
		doc, err := markdown.MarkdownToDocument(req.Markdown, markdown.Meta{
			DocumentNumber: req.DocumentNumber,
			Title:          req.Title,
			ContentType:    req.ContentType,
		})
		if err != nil {
			if !errors.As(err, new(*canonical.MalformedSourceError)) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			documentError(c, a.log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": doc, "validation": canonical.Validate(doc)})
	})

	rg.POST("/chunks", func(c *gin.Context) {
		var req struct {
			Document      canonical.Document `json:"document"`
			MaxTokens     int                `json:"max_tokens"`
			TokensPerWord float64            `json:"tokens_per_word"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.MaxTokens == 0 {
			req.MaxTokens = a.cfg.ChunkMaxTokens
		}
		if req.TokensPerWord == 0 {
			req.TokensPerWord = a.cfg.TokensPerWord
		}
		chunks, err := chunking.ChunkDocument(chunking.Input{Doc: &req.Document, MaxTokens: req.MaxTokens, TokensPerWord: req.TokensPerWord})
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, chunks)
	})

	rg.POST("/sections", func(c *gin.Context) {
		var req struct {
			Text  string `json:"text" binding:"required"`
			Clean bool   `json:"clean"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'text' is required."})
			return
		}
		text := req.Text
		if req.Clean {
			opts := textproc.DefaultCleanOptions()
			opts.Hyphen = a.cfg.HyphenRules()
			text, _ = textproc.CleanSourceText(text, opts)
		}
		changes, err := services.ExtractSectionChanges(text)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"changes":      changes,
			"transitional": services.ParseTransitionalProvisions(text),
		})
	})

	rg.POST("/classify", func(c *gin.Context) {
		var req struct {
			Title string `json:"title" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'title' is required."})
			return
		}
		cls := services.ClassifyDocument(req.Title)
		resp := gin.H{
			"type":         cls.Type,
			"confidence":   cls.Confidence,
			"base_law_sfs": cls.BaseLawSfs,
			"needs_review": cls.NeedsReview(),
		}
		if cls.Ambiguous != nil {
			resp["review_flag"] = cls.Ambiguous.Error()
		}
		c.JSON(http.StatusOK, resp)
	})
}

func setupChangeRoutes(router *gin.Engine, a *app) {
	// GET /changes?limit=50&sort=priority
	router.GET("/changes", func(c *gin.Context) {
		events, err := a.store.ListChangeEvents(c.Request.Context(), queryInt(c, "limit", 50))
		if err != nil {
			a.log.Error("Listing change events failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if c.Query("sort") == "priority" {
			services.SortByPriority(events)
		}
		c.JSON(http.StatusOK, events)
	})
}
