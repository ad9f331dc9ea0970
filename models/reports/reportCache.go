package reports

import (
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/docflow_backend/config"
)

func reportCacheEnabled() bool {
	v := strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 120s)
	ttl := 120
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

// CachedInsights returns a cached response for the key when the report
// cache is on; a redis miss or a disabled cache both fall through to
// recomputation.
func CachedInsights(key string) (*InsightsResponse, bool) {
	if !reportCacheEnabled() {
		return nil, false
	}
	var resp InsightsResponse
	found, err := config.GetRedisObject(key, &resp)
	if err != nil || !found {
		return nil, false
	}
	return &resp, true
}

func StoreInsights(key string, resp *InsightsResponse) {
	if !reportCacheEnabled() {
		return
	}
	_ = config.SetRedisObject(key, resp, reportCacheTTL())
}
