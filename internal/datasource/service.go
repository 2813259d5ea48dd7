package datasource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stratlab/internal/config"
	"stratlab/internal/market"
)

// Fetcher 抽象行情获取能力，便于测试替换。
type Fetcher interface {
	FetchBars(ctx context.Context, symbol, timeframe string, limit int64) ([]market.Bar, error)
}

// Service 并发拉取多个交易对的K线，并维护本地缓存。
type Service struct {
	cfg     config.DataConfig
	fetcher Fetcher
	cache   *Cache
	logger  *zap.Logger
}

// NewService 构造行情服务。cache 可以为 nil，表示关闭缓存。
func NewService(cfg config.DataConfig, fetcher Fetcher, cache *Cache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cfg:     cfg,
		fetcher: fetcher,
		cache:   cache,
		logger:  logger,
	}
}

// FetchAll 拉取配置中全部交易对的K线。任一交易对失败且无缓存兜底时返回错误。
func (s *Service) FetchAll(ctx context.Context) (map[string][]market.Bar, error) {
	result := make(map[string][]market.Bar, len(s.cfg.Symbols))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, symbol := range s.cfg.Symbols {
		symbol := symbol
		g.Go(func() error {
			bars, err := s.fetchSymbol(gctx, symbol)
			if err != nil {
				return err
			}
			mu.Lock()
			result[symbol] = bars
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Service) fetchSymbol(ctx context.Context, symbol string) ([]market.Bar, error) {
	bars, err := s.fetcher.FetchBars(ctx, symbol, s.cfg.Timeframe, int64(s.cfg.Limit))
	if err == nil {
		s.storeCache(ctx, symbol, bars)
		return bars, nil
	}

	if s.cfg.UseCache && s.cache != nil {
		cached, cacheErr := s.cache.LoadBars(ctx, symbol, s.cfg.Timeframe, s.cfg.Limit)
		if cacheErr == nil && len(cached) > 0 {
			s.logger.Warn("行情源不可用，使用本地缓存",
				zap.String("symbol", symbol),
				zap.Int("bars", len(cached)),
				zap.Error(err),
			)
			return cached, nil
		}
	}

	return nil, fmt.Errorf("获取 %s 行情失败: %w", symbol, err)
}

func (s *Service) storeCache(ctx context.Context, symbol string, bars []market.Bar) {
	if !s.cfg.UseCache || s.cache == nil {
		return
	}
	if err := s.cache.SaveBars(ctx, symbol, s.cfg.Timeframe, bars); err != nil {
		s.logger.Warn("写入K线缓存失败",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
	}
}
