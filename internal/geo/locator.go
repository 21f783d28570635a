package geo

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/therealutkarshpriyadarshi/logscope/internal/cache"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
	"github.com/therealutkarshpriyadarshi/logscope/pkg/types"
)

const cacheKeyPrefix = "country_data_"

// CachedLocator memoizes batch lookups in a cache store. A hit skips the
// network entirely.
type CachedLocator struct {
	next    Locator
	store   *cache.Store
	metrics *metrics.Collector
}

// NewCachedLocator wraps next with store
func NewCachedLocator(next Locator, store *cache.Store, collector *metrics.Collector) *CachedLocator {
	return &CachedLocator{next: next, store: store, metrics: collector}
}

// Batch deduplicates ips, consults the cache and falls through to the
// wrapped locator on a miss. Failed lookups are not cached.
func (l *CachedLocator) Batch(ctx context.Context, ips []string) ([]types.CountryRecord, error) {
	unique := Dedupe(ips)
	key := CacheKey(unique)

	if v, ok := l.store.Get(key); ok {
		if records, ok := v.([]types.CountryRecord); ok {
			if l.metrics != nil {
				l.metrics.GeoRequests.WithLabelValues("cached").Inc()
			}
			return records, nil
		}
	}

	records, err := l.next.Batch(ctx, unique)
	if err != nil {
		return nil, err
	}

	l.store.Set(key, records, 0)
	return records, nil
}

// Dedupe returns the distinct values of ips in sorted order
func Dedupe(ips []string) []string {
	seen := make(map[string]struct{}, len(ips))
	out := make([]string, 0, len(ips))
	for _, ip := range ips {
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}
	sort.Strings(out)
	return out
}

// CacheKey fingerprints a sorted, deduplicated IP list
func CacheKey(sortedIPs []string) string {
	data, _ := json.Marshal(sortedIPs)
	return cacheKeyPrefix + string(data)
}

// IPs collects the client IP of every record
func IPs(records []*types.LogRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.IP)
	}
	return out
}
