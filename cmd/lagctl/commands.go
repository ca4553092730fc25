package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"lagflode/canonical"
	"lagflode/chunking"
	"lagflode/config"
	"lagflode/markdown"
	"lagflode/normalize"
	"lagflode/providers/riksdagen"
	"lagflode/providers/sfs"
	"lagflode/services"
	"lagflode/storage"
	"lagflode/textproc"
)

type rootFlags struct {
	verbose     bool
	contentType string
	number      string
	title       string
}

func newRootCommand() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "lagctl",
		Short:         "Werkzeuge für die Lagflöde-Pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "Debug-Logging auf stderr")
	root.PersistentFlags().StringVar(&f.contentType, "type", string(canonical.SFSLaw), "Quellart, z.B. SFS_LAW, EU_REGULATION, AGENCY_REGULATION")
	root.PersistentFlags().StringVar(&f.number, "number", "", "Dokumentnummer, z.B. \"SFS 1977:1160\"")
	root.PersistentFlags().StringVar(&f.title, "title", "", "Titel, falls die Quelle keinen enthält")

	root.AddCommand(
		newNormalizeCommand(f),
		newMarkdownCommand(f),
		newChunkCommand(f),
		newSectionsCommand(),
		newClassifyCommand(),
		newCrawlCommand(f),
		newProcessCommand(f),
		newBackupCommand(f),
	)
	return root
}

func (f *rootFlags) logger() *zap.Logger {
	if !f.verbose {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func (f *rootFlags) metadata(hyphen textproc.HyphenRules) (normalize.Metadata, error) {
	ct := canonical.ContentType(strings.ToUpper(f.contentType))
	if !ct.Valid() {
		return normalize.Metadata{}, fmt.Errorf("unbekannte quellart %q", f.contentType)
	}
	return normalize.Metadata{DocumentNumber: f.number, Title: f.title, ContentType: ct, Hyphen: hyphen}, nil
}

// loadDocument liest HTML (normalisiert) oder Markdown (.md) und validiert das Ergebnis.
func (f *rootFlags) loadDocument(path string) (*canonical.Document, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	meta, err := f.metadata(textproc.DefaultHyphenRules())
	if err != nil {
		return nil, "", err
	}
	var (
		doc     *canonical.Document
		pattern = normalize.Unknown().String()
	)
	if strings.HasSuffix(strings.ToLower(path), ".md") {
		doc, err = markdown.MarkdownToDocument(string(raw), markdown.Meta{
			DocumentNumber: meta.DocumentNumber,
			Title:          meta.Title,
			ContentType:    meta.ContentType,
		})
		if err != nil {
			return nil, "", err
		}
	} else {
		res, err := normalize.NormalizeDocument(string(raw), meta)
		if err != nil {
			return nil, "", err
		}
		doc, pattern = res.Document, res.Pattern.String()
	}
	return doc, pattern, canonical.ValidateOrError(doc)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func newNormalizeCommand(f *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "normalize <file>",
		Short: "Roh-HTML in kanonisches HTML überführen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, pattern, err := f.loadDocument(args[0])
			if err != nil {
				return err
			}
			f.logger().Debug("normalisiert", zap.String("pattern", pattern), zap.Int("blocks", len(doc.Blocks)))
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), doc)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), canonical.RenderHTML(doc))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "kanonisches JSON statt HTML ausgeben")
	return cmd
}

func newMarkdownCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "markdown <file>",
		Short: "Dokument als Markdown ausgeben",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, _, err := f.loadDocument(args[0])
			if err != nil {
				return err
			}
			md, err := markdown.HTMLToMarkdown(canonical.RenderHTML(doc))
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), md)
			return err
		},
	}
}

func newChunkCommand(f *rootFlags) *cobra.Command {
	var (
		maxTokens     int
		tokensPerWord float64
	)
	cmd := &cobra.Command{
		Use:   "chunk <file>",
		Short: "Dokument in Chunks für Embeddings zerlegen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, _, err := f.loadDocument(args[0])
			if err != nil {
				return err
			}
			chunks, err := chunking.ChunkDocument(chunking.Input{Doc: doc, MaxTokens: maxTokens, TokensPerWord: tokensPerWord})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), chunks)
		},
	}
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 512, "Token-Budget pro Chunk")
	cmd.Flags().Float64Var(&tokensPerWord, "tokens-per-word", textproc.DefaultTokensPerWord, "Schätzfaktor Tokens pro Wort")
	return cmd
}

func newSectionsCommand() *cobra.Command {
	var clean bool
	cmd := &cobra.Command{
		Use:   "sections <file>",
		Short: "Paragrafänderungen aus dem Text einer Ändringsförfattning extrahieren",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text := string(raw)
			if clean {
				text, _ = textproc.CleanSourceText(text, textproc.DefaultCleanOptions())
			}
			changes, err := services.ExtractSectionChanges(text)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"changes":      changes,
				"transitional": services.ParseTransitionalProvisions(text),
			})
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", true, "Seitenköpfe und Silbentrennung vorher bereinigen")
	return cmd
}

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <title>",
		Short: "SFS-Titel als NEW_LAW, AMENDMENT oder REPEAL einordnen",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := services.ClassifyDocument(strings.Join(args, " "))
			out := map[string]any{
				"type":         c.Type,
				"confidence":   c.Confidence,
				"base_law_sfs": c.BaseLawSfs,
				"needs_review": c.NeedsReview(),
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

// openStore verbindet sich mit der Datenbank aus der Umgebung.
func openStore(cfg *config.Config) (*services.GormStore, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := services.AutoMigrate(db); err != nil {
		return nil, err
	}
	return services.NewGormStore(db), nil
}

func newCrawlCommand(f *rootFlags) *cobra.Command {
	var (
		year  int
		force bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Jahresindex crawlen und neue Dokumente speichern (benötigt DB)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			log := f.logger()
			crawler := services.NewCrawler(cfg, store, riksdagen.NewFetcher(cfg, log), sfs.NewFetcher(cfg, log), log)
			if year == 0 {
				year = time.Now().Year()
			}
			res, err := crawler.CrawlYear(cmd.Context(), year, force)
			if res != nil {
				if werr := writeJSON(cmd.OutOrStdout(), res); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Jahrgang (Standard: aktuelles Jahr)")
	cmd.Flags().BoolVar(&force, "force", false, "Watermark ignorieren und ab Seite 1 crawlen")
	return cmd
}

func newProcessCommand(f *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Offene Ändringsförfattningar verarbeiten (benötigt DB)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			log := f.logger()
			var archive services.PDFArchive
			if cfg.S3Enabled() {
				client, err := storage.NewS3Client(cfg)
				if err != nil {
					return err
				}
				archive = storage.NewArchive(client, cfg.S3Bucket)
			}
			p := services.NewAmendmentProcessor(cfg, store, sfs.NewFetcher(cfg, log), archive, log)
			sum, err := p.ProcessPending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximale Anzahl (Standard: AMENDMENT_BATCH_SIZE)")
	return cmd
}

func newBackupCommand(f *rootFlags) *cobra.Command {
	var keep int
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Datenbank sichern und nach S3 hochladen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if !cfg.S3Enabled() {
				return fmt.Errorf("S3 nicht konfiguriert")
			}
			client, err := storage.NewS3Client(cfg)
			if err != nil {
				return err
			}
			key, err := storage.Backup(cmd.Context(), client, cfg.S3Bucket, keep, storage.PgDump(cfg), time.Now(), f.logger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", cfg.S3Bucket, key)
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 4, "Anzahl aufzubewahrender Sicherungen")
	return cmd
}
