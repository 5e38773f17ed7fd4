package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ibrl/internal/cache"
	"ibrl/internal/client/pyth"
	"ibrl/internal/errs"
	"ibrl/internal/models"
	"ibrl/internal/repository"
)

const priceCacheKey = "price:sol_usd"

type PriceOracle interface {
	LatestPrice(ctx context.Context) (pyth.Price, error)
}

type PriceQuote struct {
	Price       decimal.Decimal `json:"price"`
	Conf        decimal.Decimal `json:"conf"`
	PublishTime time.Time       `json:"publishTime"`
	Source      string          `json:"source"`
	Cached      bool            `json:"cached"`
}

// PriceService serves the SOL/USD price and records the samples the detectors read.
type PriceService struct {
	Oracle PriceOracle
	Cache  cache.Store
	Repo   repository.Repository
	TTL    time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

func (s *PriceService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Current returns a cached price when one is fresh, otherwise asks the oracle.
func (s *PriceService) Current(ctx context.Context) (PriceQuote, error) {
	var cached PriceQuote
	if ok, err := cache.GetJSON(ctx, s.Cache, priceCacheKey, &cached); err == nil && ok {
		cached.Cached = true
		return cached, nil
	} else if err != nil && s.Logger != nil {
		s.Logger.Debug("price cache read failed", zap.Error(err))
	}
	return s.fetch(ctx)
}

// Sample fetches a fresh price and appends it to the sample history. A failed insert is logged
// and the live price is still returned.
func (s *PriceService) Sample(ctx context.Context) (PriceQuote, error) {
	q, err := s.fetch(ctx)
	if err != nil {
		return PriceQuote{}, err
	}
	if s.Repo != nil {
		sample := &models.PriceSample{
			Source: q.Source,
			Price:  q.Price,
			Conf:   q.Conf,
			TS:     s.now(),
		}
		if err := s.Repo.InsertPriceSample(ctx, sample); err != nil && s.Logger != nil {
			s.Logger.Warn("price sample insert failed", zap.Error(err))
		}
	}
	return q, nil
}

func (s *PriceService) fetch(ctx context.Context) (PriceQuote, error) {
	if s == nil || s.Oracle == nil {
		return PriceQuote{}, errs.Upstream("oracle", errors.New("oracle not configured"))
	}
	p, err := s.Oracle.LatestPrice(ctx)
	if err != nil {
		return PriceQuote{}, errs.Upstream("oracle", err)
	}
	if !p.Price.IsPositive() {
		return PriceQuote{}, errs.Upstream("oracle", errors.New("non-positive price"))
	}
	q := PriceQuote{Price: p.Price, Conf: p.Conf, PublishTime: p.PublishTime, Source: "pyth"}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if err := cache.SetJSON(ctx, s.Cache, priceCacheKey, q, ttl); err != nil && s.Logger != nil {
		s.Logger.Debug("price cache write failed", zap.Error(err))
	}
	return q, nil
}

// Prune deletes samples older than retention.
func (s *PriceService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if s.Repo == nil || retention <= 0 {
		return 0, nil
	}
	return s.Repo.DeletePriceSamplesBefore(ctx, s.now().Add(-retention))
}
