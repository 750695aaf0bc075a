// Package application 参考数据应用层：进程内规则缓存
package application

import (
	"context"
	"sync"
	"time"

	"github.com/wyfcoding/ordergateway/internal/referencedata/domain"
	"github.com/wyfcoding/ordergateway/pkg/logger"
)

// RulesCache 按交易对缓存精度规则
// 同一交易对的并发请求只触发一次远程获取，其余请求等待结果。
// ttl 为 0 时缓存进程生命周期内有效。
type RulesCache struct {
	source domain.FilterSource
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	ready     chan struct{}
	done      bool
	rules     *domain.SymbolRules
	err       error
	fetchedAt time.Time
}

// NewRulesCache 创建规则缓存
func NewRulesCache(source domain.FilterSource, ttl time.Duration) *RulesCache {
	return &RulesCache{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*cacheEntry),
	}
}

// GetRules 获取交易对规则，命中缓存则直接返回
func (c *RulesCache) GetRules(ctx context.Context, symbol string) (*domain.SymbolRules, error) {
	for {
		c.mu.Lock()
		e, ok := c.entries[symbol]
		if ok && e.done {
			if e.err == nil && !c.expired(e) {
				rules := e.rules
				c.mu.Unlock()
				return rules, nil
			}
			// 过期或上次失败，重新获取
			ok = false
		}

		if !ok {
			e = &cacheEntry{ready: make(chan struct{})}
			c.entries[symbol] = e
			c.mu.Unlock()

			rules, err := c.source.GetSymbolFilters(ctx, symbol)

			c.mu.Lock()
			e.rules = rules
			e.err = err
			e.fetchedAt = c.now()
			e.done = true
			if err != nil {
				// 失败结果不缓存
				delete(c.entries, symbol)
			}
			c.mu.Unlock()
			close(e.ready)

			if err != nil {
				return nil, &domain.FetchError{Symbol: symbol, Err: err}
			}
			logger.Info(ctx, "trading rules cached",
				"symbol", symbol,
				"tick_size", rules.TickSize.String(),
				"step_size", rules.StepSize.String(),
				"min_qty", rules.MinQty.String(),
			)
			return rules, nil
		}

		// 已有获取进行中，等待其完成后重读
		c.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, &domain.FetchError{Symbol: symbol, Err: ctx.Err()}
		}
	}
}

// Evict 主动移除某交易对的缓存
func (c *RulesCache) Evict(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[symbol]; ok && e.done {
		delete(c.entries, symbol)
	}
}

func (c *RulesCache) expired(e *cacheEntry) bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(e.fetchedAt) > c.ttl
}
