package news

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"vertbot/internal/interfaces"
	"vertbot/internal/logger"
	"vertbot/internal/store"
	"vertbot/internal/types"
)

var ErrDisabled = errors.New("news lookups are disabled")

// CompanyNews is the primary provider, satisfied by the Finnhub client.
type CompanyNews interface {
	CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]types.NewsArticle, error)
}

// MarketNews serves category-wide news, satisfied by the Finnhub client.
type MarketNews interface {
	MarketNews(ctx context.Context, category string) ([]types.NewsArticle, error)
}

// Provider is what the service needs from its primary source.
type Provider interface {
	CompanyNews
	MarketNews
}

const marketCategory = "general"

// Fallback is consulted when the primary provider fails or returns nothing.
type Fallback interface {
	Search(ctx context.Context, symbol string, maxArticles int) ([]types.NewsArticle, error)
}

// Service serves recent headlines per symbol with a short-lived cache.
type Service struct {
	primary  Provider
	fallback Fallback
	cache    *headlineCache
	market   *headlineCache
	cfg      ServiceConfig
	now      func() time.Time
}

var _ interfaces.NewsSource = (*Service)(nil)

type ServiceConfig struct {
	MaxArticles    int           // upper bound for any single symbol lookup
	MaxMarket      int           // upper bound for general market news
	LookbackDays   int           // primary provider window
	CacheDuration  time.Duration // how long a symbol's headlines are reused
	ScraperTimeout time.Duration
	Enabled        bool
	Location       *time.Location // the lookback window is computed in this zone
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxArticles:    5,
		MaxMarket:      15,
		LookbackDays:   4,
		CacheDuration:  5 * time.Minute,
		ScraperTimeout: 15 * time.Second,
		Enabled:        true,
		Location:       time.UTC,
	}
}

func ServiceConfigFromStore(cfg *store.Config) *ServiceConfig {
	return &ServiceConfig{
		MaxArticles:    cfg.News.MaxArticles,
		MaxMarket:      15,
		LookbackDays:   cfg.News.LookbackDays,
		CacheDuration:  time.Duration(cfg.News.CacheTTLSeconds) * time.Second,
		ScraperTimeout: cfg.FetchTimeout(),
		Enabled:        cfg.News.Enabled,
		Location:       cfg.Location(),
	}
}

type headlineCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
	ttl  time.Duration
}

type cacheEntry struct {
	articles  []types.NewsArticle
	timestamp time.Time
}

func newHeadlineCache(ttl time.Duration) *headlineCache {
	return &headlineCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
	}
}

func (c *headlineCache) get(symbol string, now time.Time) ([]types.NewsArticle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[symbol]
	if !exists || now.Sub(entry.timestamp) >= c.ttl {
		return nil, false
	}
	return entry.articles, true
}

func (c *headlineCache) set(symbol string, articles []types.NewsArticle, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[symbol] = &cacheEntry{articles: articles, timestamp: now}
}

// prune drops expired entries.
func (c *headlineCache) prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for symbol, entry := range c.data {
		if now.Sub(entry.timestamp) >= c.ttl {
			delete(c.data, symbol)
			n++
		}
	}
	return n
}

// NewService builds the service. fallback may be nil.
func NewService(primary Provider, fallback Fallback, cfg *ServiceConfig) *Service {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxMarket <= 0 {
		cfg.MaxMarket = 15
	}
	return &Service{
		primary:  primary,
		fallback: fallback,
		cache:    newHeadlineCache(cfg.CacheDuration),
		market:   newHeadlineCache(cfg.CacheDuration),
		cfg:      *cfg,
		now:      time.Now,
	}
}

// Headlines returns up to max recent articles for symbol, newest first.
func (s *Service) Headlines(ctx context.Context, symbol string, max int) ([]types.NewsArticle, error) {
	if !s.cfg.Enabled {
		return nil, ErrDisabled
	}
	if max <= 0 || max > s.cfg.MaxArticles {
		max = s.cfg.MaxArticles
	}

	if cached, ok := s.cache.get(symbol, s.now()); ok {
		logger.Debug(ctx, "Using cached headlines", "symbol", symbol, "articles", len(cached))
		return limit(cached, max), nil
	}

	logger.Info(ctx, "Fetching fresh headlines", "symbol", symbol)
	articles, err := s.fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cache.set(symbol, articles, s.now())
	return limit(articles, max), nil
}

// MarketHeadlines returns up to max general market articles, newest first.
// There is no fallback; the scraper only searches by symbol.
func (s *Service) MarketHeadlines(ctx context.Context, max int) ([]types.NewsArticle, error) {
	if !s.cfg.Enabled {
		return nil, ErrDisabled
	}
	if max <= 0 || max > s.cfg.MaxMarket {
		max = s.cfg.MaxMarket
	}

	if cached, ok := s.market.get(marketCategory, s.now()); ok {
		logger.Debug(ctx, "Using cached market news", "articles", len(cached))
		return limit(cached, max), nil
	}

	logger.Info(ctx, "Fetching fresh market news", "category", marketCategory)
	articles, err := s.primary.MarketNews(ctx, marketCategory)
	if err != nil {
		return nil, err
	}
	for i := range articles {
		articles[i].Summary = PlainText(articles[i].Summary)
	}
	sortNewest(articles)
	articles = limit(articles, s.cfg.MaxMarket)

	s.market.set(marketCategory, articles, s.now())
	return limit(articles, max), nil
}

func (s *Service) fetch(ctx context.Context, symbol string) ([]types.NewsArticle, error) {
	to := s.now().In(s.cfg.Location)
	from := to.AddDate(0, 0, -s.cfg.LookbackDays)

	articles, err := s.primary.CompanyNews(ctx, symbol, from, to)
	if err != nil {
		logger.ErrorWithErr(ctx, "Company news lookup failed", err, "symbol", symbol)
	}
	if len(articles) > 0 {
		for i := range articles {
			articles[i].Summary = PlainText(articles[i].Summary)
		}
		sortNewest(articles)
		return limit(articles, s.cfg.MaxArticles), nil
	}
	if s.fallback == nil {
		return articles, err
	}

	logger.Info(ctx, "No company news, trying Google News", "symbol", symbol)
	scraped, ferr := s.fallback.Search(ctx, symbol, s.cfg.MaxArticles)
	if ferr != nil {
		if err != nil {
			return nil, errors.Join(err, ferr)
		}
		return nil, ferr
	}
	sortNewest(scraped)
	return limit(scraped, s.cfg.MaxArticles), nil
}

// Prune removes expired cache entries. The bot calls it from the daily reset.
func (s *Service) Prune(ctx context.Context) {
	if n := s.cache.prune(s.now()) + s.market.prune(s.now()); n > 0 {
		logger.Debug(ctx, "Pruned headline cache", "entries", n)
	}
}

func (s *Service) ClearCache() {
	for _, c := range []*headlineCache{s.cache, s.market} {
		c.mu.Lock()
		c.data = make(map[string]*cacheEntry)
		c.mu.Unlock()
	}
}

func (s *Service) GetCachedSymbols() []string {
	s.cache.mu.RLock()
	defer s.cache.mu.RUnlock()

	symbols := make([]string, 0, len(s.cache.data))
	for symbol := range s.cache.data {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func sortNewest(articles []types.NewsArticle) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
}

func limit(articles []types.NewsArticle, n int) []types.NewsArticle {
	if len(articles) > n {
		return articles[:n]
	}
	return articles
}
