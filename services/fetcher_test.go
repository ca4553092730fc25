package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"lagflode/config"
	"lagflode/models"
	"lagflode/providers"
	"lagflode/providers/sfs"
)

type fakeIndex struct {
	pages map[int]*providers.IndexPage
	fail  map[int]error
	calls []int
}

func (f *fakeIndex) Name() string { return "fake" }

func (f *fakeIndex) ListPage(_ context.Context, _, page int) (*providers.IndexPage, error) {
	f.calls = append(f.calls, page)
	if err := f.fail[page]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[page]; ok {
		return p, nil
	}
	return &providers.IndexPage{Page: page, Pages: len(f.pages), PageSize: 2}, nil
}

type fakePages struct {
	pages map[string]*sfs.DocumentPage
	fail  map[string]error
	calls int
}

func (f *fakePages) FetchDocument(_ context.Context, sfsNumber string) (*sfs.DocumentPage, error) {
	f.calls++
	if err := f.fail[sfsNumber]; err != nil {
		return nil, err
	}
	return f.pages[sfsNumber], nil
}

func indexDoc(designation, title string) providers.IndexDocument {
	return providers.IndexDocument{
		Designation: designation,
		Title:       title,
		Published:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		SystemDate:  "2024-03-01 10:00:00",
	}
}

type CrawlerSuite struct {
	suite.Suite
	store   *memStore
	index   *fakeIndex
	pages   *fakePages
	crawler *Crawler
}

func (s *CrawlerSuite) SetupTest() {
	s.store = newMemStore()
	s.index = &fakeIndex{
		pages: map[int]*providers.IndexPage{
			1: {Total: 3, Pages: 2, Page: 1, PageSize: 2, Documents: []providers.IndexDocument{
				indexDoc("2024:1", "Lag (2024:1) om exempel"),
				indexDoc("2024:2", "Lag om ändring i socialförsäkringsbalken (2010:110)"),
			}},
			2: {Total: 3, Pages: 2, Page: 2, PageSize: 2, Documents: []providers.IndexDocument{
				indexDoc("2024:3", "Lag om upphävande av förordningen (1998:1)"),
			}},
		},
		fail: map[int]error{},
	}
	s.pages = &fakePages{
		pages: map[string]*sfs.DocumentPage{
			"SFS 2024:2": {
				SfsNumber: "2024:2",
				Title:     "Lag om ändring i socialförsäkringsbalken (2010:110)",
				PDFURL:    "https://sfs.example/sfs/2024-03/SFS2024-2.pdf",
				Text:      "Enligt riksdagens beslut föreskrivs att 3 § ska ha följande lydelse.\n\n3 § Ny text.",
			},
		},
		fail: map[string]error{},
	}
	cfg := &config.Config{}
	s.crawler = NewCrawler(cfg, s.store, s.index, s.pages, zap.NewNop())
	s.crawler.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
}

func (s *CrawlerSuite) crawl(force bool) (*CrawlResult, error) {
	return s.crawler.CrawlCurrentYear(context.Background(), force)
}

func (s *CrawlerSuite) TestDiscoversAndClassifies() {
	res, err := s.crawl(false)
	s.Require().NoError(err)

	s.Equal(StateDone, res.State)
	s.Equal(2, res.Pages)
	s.Equal(3, res.Persisted)
	s.Equal(0, res.Skipped)
	s.NotEmpty(res.RunID)
	s.Equal(1, res.ByType[models.DocumentNewLaw])
	s.Equal(1, res.ByType[models.DocumentAmendment])
	s.Equal(1, res.ByType[models.DocumentRepeal])

	amend, err := s.store.GetAmendment(context.Background(), "2024:2")
	s.Require().NoError(err)
	s.Equal(models.ParsePending, amend.ParseStatus)
	s.Equal(models.DocumentAmendment, amend.DocumentType)
	s.Require().NotNil(amend.BaseLawSfs)
	s.Equal("SFS 2010:110", *amend.BaseLawSfs)
	s.Equal("https://sfs.example/sfs/2024-03/SFS2024-2.pdf", amend.PDFURL)
	s.Require().NotNil(amend.FullText)

	repeal, err := s.store.GetAmendment(context.Background(), "SFS 2024:3")
	s.Require().NoError(err)
	s.Equal(models.DocumentRepeal, repeal.DocumentType)
	s.Equal("SFS 1998:1", *repeal.BaseLawSfs)

	wm, _ := s.store.LoadWatermark(context.Background(), models.JobCrawlSFS, 2024)
	s.Equal(2, wm.LastPage)
	s.False(wm.LastPageFull)
	s.Equal("2024:3", wm.LastSfsNumber)
	s.Equal(res.RunID, wm.LastRunID)
}

func (s *CrawlerSuite) TestSecondRunIsIdempotent() {
	_, err := s.crawl(false)
	s.Require().NoError(err)
	before, _ := s.store.ListAmendments(context.Background(), "", 0)

	res, err := s.crawl(false)
	s.Require().NoError(err)
	after, _ := s.store.ListAmendments(context.Background(), "", 0)

	// die unvollständige letzte Seite wird erneut gelesen, bekannte Nummern übersprungen
	s.Equal(0, res.Persisted)
	s.Equal(1, res.Skipped)
	s.Equal([]int{1, 2, 2}, s.index.calls)
	s.Equal(len(before), len(after))
	for i := range before {
		s.Equal(before[i].SfsNumber, after[i].SfsNumber)
		s.Equal(before[i].ID, after[i].ID)
	}
}

func (s *CrawlerSuite) TestForceReprocessesKnownNumbers() {
	_, err := s.crawl(false)
	s.Require().NoError(err)

	res, err := s.crawler.CrawlYearIndex(context.Background(), CrawlOptions{Year: 2024, Force: true})
	s.Require().NoError(err)
	s.Equal(3, res.Persisted)
	s.Equal(0, res.Skipped)

	all, _ := s.store.ListAmendments(context.Background(), "", 0)
	s.Len(all, 3)
}

func (s *CrawlerSuite) TestListingFailureStopsAtLastWatermark() {
	s.index.fail[2] = &providers.FetchError{URL: "fake", StatusCode: http.StatusBadGateway}

	res, err := s.crawl(false)
	var fe *providers.FetchError
	s.Require().ErrorAs(err, &fe)
	s.True(fe.Recoverable())
	s.Equal(StateListingPage, res.State)
	s.Equal(1, res.Watermark.LastPage)
	s.True(res.Watermark.LastPageFull)

	// erneuter Lauf setzt auf Seite 2 auf
	delete(s.index.fail, 2)
	s.index.calls = nil
	res, err = s.crawl(false)
	s.Require().NoError(err)
	s.Equal([]int{2}, s.index.calls)
	s.Equal(1, res.Persisted)
}

func (s *CrawlerSuite) TestDocumentFailureDoesNotAbortPage() {
	s.pages.fail["SFS 2024:1"] = &providers.FetchError{URL: "doc", Err: context.DeadlineExceeded}

	res, err := s.crawl(false)
	s.Require().NoError(err)
	s.Equal(3, res.Persisted)
	s.Require().Len(res.Failures, 1)
	s.Equal("SFS 2024:1", res.Failures[0].SfsNumber)

	doc, err := s.store.GetAmendment(context.Background(), "2024:1")
	s.Require().NoError(err)
	s.Equal("Lag (2024:1) om exempel", doc.Title)
	s.Nil(doc.FullText)
}

func (s *CrawlerSuite) TestPersistFailureKeepsWatermark() {
	s.store.persistErr = errors.New("db down")

	res, err := s.crawl(false)
	s.Require().Error(err)
	s.Equal(0, res.Watermark.LastPage)
	s.Equal(1, s.store.persistCall)
}

func (s *CrawlerSuite) TestCancelledBetweenPages() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.crawler.CrawlYearIndex(ctx, CrawlOptions{Year: 2024})
	s.Require().ErrorIs(err, context.Canceled)
	s.Zero(res.Pages)
	s.Empty(s.index.calls)
}

func (s *CrawlerSuite) TestAmbiguousTitleIsFlagged() {
	s.index.pages = map[int]*providers.IndexPage{
		1: {Total: 1, Pages: 1, Page: 1, PageSize: 2, Documents: []providers.IndexDocument{
			indexDoc("2024:7", "Meddelande om rättelse"),
		}},
	}
	_, err := s.crawl(false)
	s.Require().NoError(err)

	doc, err := s.store.GetAmendment(context.Background(), "2024:7")
	s.Require().NoError(err)
	s.Equal(models.DocumentNewLaw, doc.DocumentType)
	s.True(doc.NeedsReview)
	s.Contains(string(doc.ReviewFlags), "nicht eindeutig")
}

func (s *CrawlerSuite) TestOwnDesignationIsNotBaseLaw() {
	s.index.pages = map[int]*providers.IndexPage{
		1: {Total: 1, Pages: 1, Page: 1, PageSize: 2, Documents: []providers.IndexDocument{
			indexDoc("2025:50", "Lag (2025:50) om ändring i socialförsäkringsbalken"),
		}},
	}
	_, err := s.crawl(false)
	s.Require().NoError(err)

	doc, err := s.store.GetAmendment(context.Background(), "2025:50")
	s.Require().NoError(err)
	s.Equal(models.DocumentAmendment, doc.DocumentType)
	s.Nil(doc.BaseLawSfs)
	s.False(doc.NeedsReview)
	s.Empty(doc.ReviewFlags)
}

func (s *CrawlerSuite) TestMaxPages() {
	res, err := s.crawler.CrawlYearIndex(context.Background(), CrawlOptions{Year: 2024, MaxPages: 1})
	s.Require().NoError(err)
	s.Equal(1, res.Pages)
	s.Equal([]int{1}, s.index.calls)
}

func TestCrawlerSuite(t *testing.T) {
	suite.Run(t, new(CrawlerSuite))
}
