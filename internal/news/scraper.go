package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"vertbot/internal/logger"
	"vertbot/internal/types"
)

const GoogleNewsURL = "https://news.google.com"

// Scraper reads the Google News RSS search feed. It is the fallback when the
// primary provider has nothing for a symbol.
type Scraper struct {
	baseURL string
	timeout time.Duration
}

func NewScraper(baseURL string, timeout time.Duration) *Scraper {
	if baseURL == "" {
		baseURL = GoogleNewsURL
	}
	return &Scraper{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// Search returns up to maxArticles items for "<symbol> stock".
func (s *Scraper) Search(ctx context.Context, symbol string, maxArticles int) ([]types.NewsArticle, error) {
	articles := []types.NewsArticle{}

	c := colly.NewCollector(
		colly.AllowedDomains(getDomain(s.baseURL)),
		colly.MaxDepth(1),
	)
	if s.timeout > 0 {
		c.SetRequestTimeout(s.timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	})

	c.OnXML("//item", func(e *colly.XMLElement) {
		if len(articles) >= maxArticles {
			return
		}
		title := strings.TrimSpace(e.ChildText("title"))
		link := strings.TrimSpace(e.ChildText("link"))
		if title == "" || link == "" {
			return
		}

		source := strings.TrimSpace(e.ChildText("source"))
		if source == "" {
			source = "Google News"
		}
		// Titles come as "Headline - Publisher".
		title = strings.TrimSuffix(title, " - "+source)

		var published time.Time
		if ts, err := time.Parse(time.RFC1123, e.ChildText("pubDate")); err == nil {
			published = ts.UTC()
		}

		articles = append(articles, types.NewsArticle{
			Symbol:      symbol,
			Title:       title,
			URL:         link,
			Summary:     PlainText(e.ChildText("description")),
			Source:      source,
			PublishedAt: published,
		})
	})

	var scrapeErr error
	c.OnError(func(r *colly.Response, err error) {
		scrapeErr = err
		logger.ErrorWithErr(ctx, "Google News scrape failed", err, "symbol", symbol, "status", r.StatusCode)
	})

	q := url.QueryEscape(symbol + " stock")
	searchURL := fmt.Sprintf("%s/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en", s.baseURL, q)
	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("failed to scrape Google News: %w", err)
	}
	c.Wait()

	if scrapeErr != nil {
		return nil, fmt.Errorf("failed to scrape Google News: %w", scrapeErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Info(ctx, "Google News scraping completed", "symbol", symbol, "articles", len(articles))
	return articles, nil
}

// PlainText strips markup from an HTML fragment and collapses whitespace.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func getDomain(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
