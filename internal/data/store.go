// Package data provides storage and loading of historical price series.
package data

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/validation-backend/internal/series"
	"github.com/atlas-desktop/validation-backend/pkg/types"
)

// Store loads historical series from per-symbol JSON files and caches
// them in memory. Missing symbols are backed by deterministic sample
// series so validation runs are reproducible without real data.
type Store struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	dataDir  string
	cache    map[string][]*types.OHLCV
	metadata map[string]*SymbolMetadata
}

// SymbolMetadata describes the stored series for one symbol
type SymbolMetadata struct {
	Symbol    string    `json:"symbol"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	BarCount  int       `json:"barCount"`
	Timeframe string    `json:"timeframe"`
}

// NewStore creates a data store rooted at dataDir
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	store := &Store{
		logger:   logger,
		dataDir:  dataDir,
		cache:    make(map[string][]*types.OHLCV),
		metadata: make(map[string]*SymbolMetadata),
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := store.loadMetadata(); err != nil {
		logger.Warn("failed to load metadata", zap.Error(err))
	}

	return store, nil
}

// Load returns the series for a symbol and timeframe, sorted and
// validated. If no file exists, a deterministic sample series seeded by
// the symbol name is generated, stored, and returned.
func (s *Store) Load(ctx context.Context, symbol string, timeframe types.Timeframe, bars int) ([]*types.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := fmt.Sprintf("%s_%s", symbol, timeframe)
	if cached, ok := s.cache[cacheKey]; ok {
		return tail(cached, bars), nil
	}

	filename := s.seriesPath(symbol, timeframe)
	raw, err := os.ReadFile(filename)
	if os.IsNotExist(err) {
		s.logger.Info("generating sample series",
			zap.String("symbol", symbol),
			zap.String("timeframe", string(timeframe)))
		sample := sampleSeries(symbol, timeframe, bars)
		if err := s.saveLocked(symbol, timeframe, sample); err != nil {
			return nil, err
		}
		return sample, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read series file: %w", err)
	}

	var loaded []*types.OHLCV
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse series file: %w", err)
	}
	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].Timestamp.Before(loaded[j].Timestamp)
	})
	if err := series.Validate(loaded); err != nil {
		return nil, fmt.Errorf("stored series for %s is unusable: %w", symbol, err)
	}

	s.cache[cacheKey] = loaded
	return tail(loaded, bars), nil
}

// Save persists a series and updates symbol metadata
func (s *Store) Save(symbol string, timeframe types.Timeframe, bars []*types.OHLCV) error {
	if err := series.Validate(bars); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(symbol, timeframe, bars)
}

func (s *Store) saveLocked(symbol string, timeframe types.Timeframe, bars []*types.OHLCV) error {
	cacheKey := fmt.Sprintf("%s_%s", symbol, timeframe)
	filename := s.seriesPath(symbol, timeframe)

	raw, err := json.MarshalIndent(bars, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0644); err != nil {
		return fmt.Errorf("failed to write series file: %w", err)
	}

	s.cache[cacheKey] = bars
	if len(bars) > 0 {
		s.metadata[symbol] = &SymbolMetadata{
			Symbol:    symbol,
			StartDate: bars[0].Timestamp,
			EndDate:   bars[len(bars)-1].Timestamp,
			BarCount:  len(bars),
			Timeframe: string(timeframe),
		}
	}
	if err := s.saveMetadata(); err != nil {
		s.logger.Warn("failed to save metadata", zap.Error(err))
	}
	return nil
}

// Symbols lists the symbols with stored metadata
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.metadata))
	for symbol := range s.metadata {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Metadata returns the stored metadata for a symbol
func (s *Store) Metadata(symbol string) (*SymbolMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[symbol]
	if !ok {
		return nil, fmt.Errorf("no data available for symbol %s", symbol)
	}
	copied := *meta
	return &copied, nil
}

// ClearCache drops the in-memory series cache
func (s *Store) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string][]*types.OHLCV)
}

func (s *Store) loadMetadata() error {
	raw, err := os.ReadFile(filepath.Join(s.dataDir, "metadata.json"))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, &s.metadata)
}

func (s *Store) saveMetadata() error {
	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dataDir, "metadata.json"), raw, 0644)
}

// seriesPath builds the on-disk filename for a symbol and timeframe.
// Pair separators are flattened so symbols like BTC/USDT stay in one
// directory.
func (s *Store) seriesPath(symbol string, timeframe types.Timeframe) string {
	name := strings.ReplaceAll(symbol, "/", "-")
	return filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", name, timeframe))
}

// tail returns the most recent n bars, or everything when n <= 0
func tail(bars []*types.OHLCV, n int) []*types.OHLCV {
	if n <= 0 || n >= len(bars) {
		return bars
	}
	return bars[len(bars)-n:]
}

// timeframeInterval maps a timeframe to its bar duration
func timeframeInterval(timeframe types.Timeframe) time.Duration {
	switch timeframe {
	case types.Timeframe1m:
		return time.Minute
	case types.Timeframe5m:
		return 5 * time.Minute
	case types.Timeframe15m:
		return 15 * time.Minute
	case types.Timeframe4h:
		return 4 * time.Hour
	case types.Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// sampleSeries generates a random-walk series seeded by the symbol
// name, so repeated loads of the same symbol agree
func sampleSeries(symbol string, timeframe types.Timeframe, bars int) []*types.OHLCV {
	if bars <= 0 {
		bars = 1000
	}

	var seed int64
	for _, c := range symbol {
		seed = seed*31 + int64(c)
	}
	rng := rand.New(rand.NewSource(seed))

	interval := timeframeInterval(timeframe)
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0

	out := make([]*types.OHLCV, bars)
	for i := range out {
		open := price
		price *= 1 + 0.0002 + rng.NormFloat64()*0.01
		high := maxFloat(open, price) * (1 + rng.Float64()*0.003)
		low := minFloat(open, price) * (1 - rng.Float64()*0.003)

		out[i] = &types.OHLCV{
			Timestamp: start.Add(time.Duration(i) * interval),
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(price),
			Volume:    decimal.NewFromFloat(rng.Float64() * 1e6),
		}
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
