package reviews

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"hotel-relay/internal/metrics"

	"github.com/rs/zerolog"
)

type Review struct {
	Source string `json:"source"`
	Author string `json:"author"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
	Date   string `json:"date,omitempty"`
}

// Source is one CSV export, named after the site it came from.
type Source struct {
	Name string
	Path string
}

type FileSummary struct {
	Name    string `json:"name"`
	Parsed  int    `json:"parsed"`
	Skipped int    `json:"skipped"`
	Error   string `json:"error,omitempty"`
}

type Summary struct {
	Files    []FileSummary `json:"files"`
	Total    int           `json:"total"`
	LoadedAt time.Time     `json:"loadedAt"`
}

// Catalog holds the reviews parsed at the last reload.
type Catalog struct {
	sources []Source
	logger  zerolog.Logger

	mu      sync.RWMutex
	reviews []Review
	summary Summary
}

func NewCatalog(logger zerolog.Logger, sources ...Source) *Catalog {
	return &Catalog{sources: sources, logger: logger}
}

// Reload parses every source again. A source that cannot be read is
// reported in the summary with zero reviews and the rest still load.
func (c *Catalog) Reload(ctx context.Context) (Summary, error) {
	summary := Summary{Files: make([]FileSummary, 0, len(c.sources)), LoadedAt: time.Now().UTC()}
	var all []Review
	var errs []error

	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}

		file := FileSummary{Name: src.Name}
		reviews, skipped, err := parseFile(src)
		if err != nil {
			file.Error = err.Error()
			errs = append(errs, err)
			c.logger.Warn().Err(err).Str("source", src.Name).Str("path", src.Path).Msg("failed to load reviews")
		}
		file.Parsed = len(reviews)
		file.Skipped = skipped
		summary.Files = append(summary.Files, file)
		summary.Total += len(reviews)
		all = append(all, reviews...)
		metrics.ReviewsParsed.WithLabelValues(src.Name).Set(float64(len(reviews)))
	}

	c.mu.Lock()
	c.reviews = all
	c.summary = summary
	c.mu.Unlock()

	c.logger.Info().Int("total", summary.Total).Int("sources", len(c.sources)).Msg("reviews reloaded")
	return summary, errors.Join(errs...)
}

func (c *Catalog) Summary() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.summary
}

func (c *Catalog) Reviews() []Review {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Review, len(c.reviews))
	copy(out, c.reviews)
	return out
}

func parseFile(src Source) ([]Review, int, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", src.Name, err)
	}
	defer f.Close()
	return Parse(f, src.Name)
}

type columns struct {
	author, rating, text, date int
}

var positional = columns{author: 0, rating: 1, text: 2, date: 3}

// Parse reads review rows from r. The first row is treated as a header when
// it names the columns; otherwise columns are author, rating, text, date.
// Rows without an author or text, or with a rating outside 1..5, are skipped.
func Parse(r io.Reader, source string) ([]Review, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var (
		reviews []Review
		skipped int
		cols    = positional
		first   = true
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				skipped++
				continue
			}
			return reviews, skipped, fmt.Errorf("read %s: %w", source, err)
		}

		if first {
			first = false
			if header, ok := headerColumns(record); ok {
				cols = header
				continue
			}
		}

		review, ok := toReview(record, cols, source)
		if !ok {
			skipped++
			continue
		}
		reviews = append(reviews, review)
	}
	return reviews, skipped, nil
}

func headerColumns(record []string) (columns, bool) {
	cols := columns{author: -1, rating: -1, text: -1, date: -1}
	for i, name := range record {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "author", "name", "reviewer":
			cols.author = i
		case "rating", "stars", "score":
			cols.rating = i
		case "text", "review", "comment", "content":
			cols.text = i
		case "date", "published", "created_at":
			cols.date = i
		}
	}
	if cols.author < 0 || cols.rating < 0 || cols.text < 0 {
		return positional, false
	}
	return cols, true
}

func toReview(record []string, cols columns, source string) (Review, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	author, text := field(cols.author), field(cols.text)
	if author == "" || text == "" {
		return Review{}, false
	}
	rating, err := strconv.Atoi(field(cols.rating))
	if err != nil {
		f, ferr := strconv.ParseFloat(field(cols.rating), 64)
		if ferr != nil {
			return Review{}, false
		}
		rating = int(f + 0.5)
	}
	if rating < 1 || rating > 5 {
		return Review{}, false
	}
	return Review{Source: source, Author: author, Rating: rating, Text: text, Date: field(cols.date)}, true
}
