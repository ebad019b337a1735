// Command catalog-ingest bulk-loads product feeds into the catalog.
//
// Suppliers publish gzip-compressed feed files of pipe-separated records
// (id|name|price|quantity|category). Feeds are noisy: a product is only
// trusted into the catalog when at least two independent feeds list it. With
// feeds in the hundred-million-line range the cross-feed membership test uses
// one bloom filter per feed instead of a giant set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/stockorder/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFeeds      = 3
	progressEvery = 10_000_000
	minSources    = 2
)

const upsertProductSQL = `INSERT INTO products (id, name, price, quantity, category)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name, price = EXCLUDED.price,
		quantity = EXCLUDED.quantity, category = EXCLUDED.category`

// feedRecord is one parsed product line from a supplier feed.
type feedRecord struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity int
	Category string
}

// feedResult holds candidate records found in a single feed during pass 2.
type feedResult struct {
	records map[string]feedRecord
	sources map[string]uint
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing feedN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	feeds := make([]string, numFeeds)
	for i := range numFeeds {
		feeds[i] = filepath.Join(dataDir, fmt.Sprintf("feed%d.gz", i+1))
	}
	for _, f := range feeds {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check feed %s", f)
		}
	}

	// Pass 1: one bloom filter of product ids per feed, built concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", numFeeds))

	filters, err := buildBloomFilters(ctx, feeds)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: collect records whose id appears in minSources+ feeds.
	slog.Info("pass 2: collecting trusted products")

	trusted, err := collectTrustedProducts(ctx, feeds, filters)
	if err != nil {
		return errors.Wrap(err, "collect trusted products")
	}

	slog.Info("trusted products found", slog.Int("count", len(trusted)))

	if len(trusted) == 0 {
		slog.Info("nothing to ingest")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeProducts(ctx, pool, trusted)
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, feeds []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFeed(ctx, path, func(line string) {
			rec, ok := parseFeedLine(line)
			if !ok {
				return
			}
			filter.AddString(rec.ID)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_records", count),
		)

		filters[idx] = filter
		return nil
	}
}

// collectTrustedProducts re-streams each feed, keeping records whose id also
// appears in another feed's bloom filter, then merges source bitmasks and
// keeps ids listed by minSources or more feeds.
func collectTrustedProducts(ctx context.Context, feeds []string, filters []*bloom.BloomFilter) ([]feedRecord, error) {
	results := make([]feedResult, len(feeds))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range feeds {
		g.Go(collectCandidatesInFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge source bitmasks from all feeds. Later feeds win on record
	// content, which keeps the freshest listing for each id.
	sources := make(map[string]uint)
	records := make(map[string]feedRecord)
	for _, r := range results {
		for id, mask := range r.sources {
			sources[id] |= mask
		}
		for id, rec := range r.records {
			records[id] = rec
		}
	}

	var trusted []feedRecord
	for id, mask := range sources {
		if bits.OnesCount(mask) >= minSources {
			trusted = append(trusted, records[id])
		}
	}

	return trusted, nil
}

func collectCandidatesInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []feedResult,
) func() error {
	return func() error {
		res := feedResult{
			records: make(map[string]feedRecord),
			sources: make(map[string]uint),
		}
		feedBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFeed(ctx, path, func(line string) {
			rec, ok := parseFeedLine(line)
			if !ok {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("records", count),
				)
			}

			// Keep only ids that at least one OTHER feed also lists.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(rec.ID) {
					res.records[rec.ID] = rec
					res.sources[rec.ID] |= feedBit
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for candidates", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_records", count),
			slog.Int("candidates", len(res.records)),
		)

		results[idx] = res
		return nil
	}
}

// parseFeedLine parses "id|name|price|quantity|category". Malformed lines
// are skipped rather than failing the whole feed.
func parseFeedLine(line string) (feedRecord, bool) {
	parts := strings.Split(line, "|")
	if len(parts) != 5 {
		return feedRecord{}, false
	}

	id := strings.TrimSpace(parts[0])
	name := strings.TrimSpace(parts[1])
	if id == "" || name == "" {
		return feedRecord{}, false
	}

	price, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil || price.IsNegative() {
		return feedRecord{}, false
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(parts[3]))
	if err != nil || quantity < 0 {
		return feedRecord{}, false
	}

	return feedRecord{
		ID:       id,
		Name:     name,
		Price:    price,
		Quantity: quantity,
		Category: strings.TrimSpace(parts[4]),
	}, true
}

// streamGzFeed opens a gzip-compressed feed and calls fn for each line.
func streamGzFeed(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeProducts upserts all trusted products into the catalog.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, products []feedRecord) error {
	slog.Info("writing products to database", slog.Int("count", len(products)))

	for i, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Quantity, p.Category)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		if (i+1)%100 == 0 || i+1 == len(products) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(products)))
		}
	}

	return nil
}
