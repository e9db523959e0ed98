package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/house-points-api/pkg/middleware/requestid"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
	processedKey    = "processing_time_ms"
)

// WithResponseMeta seeds the meta map that handlers attach to their envelopes.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		meta := ensureMeta(c)
		if id := requestid.Value(c); id != "" {
			meta["request_id"] = id
		}
		c.Next()
		if _, done := meta[processedKey]; !done {
			meta[processedKey] = time.Since(start).Milliseconds()
		}
	}
}

// SetCacheHit records whether the payload came from the analytics cache.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
}

// MarkProcessed stamps the elapsed time; call it right before writing the response.
func MarkProcessed(c *gin.Context, start time.Time) {
	ensureMeta(c)[processedKey] = time.Since(start).Milliseconds()
}

// ExtractMeta returns the meta map, or nil when nothing was recorded.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta, _ := c.Value(responseMetaKey).(map[string]interface{})
	return meta
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := ExtractMeta(c); meta != nil {
		return meta
	}
	meta := map[string]interface{}{}
	if c != nil {
		c.Set(responseMetaKey, meta)
	}
	return meta
}
