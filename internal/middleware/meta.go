package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

type responseMeta struct {
	start  time.Time
	fields map[string]interface{}
}

// WithResponseMeta starts the request clock and the meta fields handlers may add to.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{start: time.Now(), fields: map[string]interface{}{}})
		c.Next()
	}
}

func metaOf(c *gin.Context) *responseMeta {
	if c == nil {
		return nil
	}
	value, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, _ := value.(*responseMeta)
	return meta
}

// SetCacheHit records whether the answer came from the availability cache.
func SetCacheHit(c *gin.Context, hit bool) {
	if meta := metaOf(c); meta != nil {
		meta.fields["cache_hit"] = hit
	}
}

// ExtractMeta returns a copy of the meta fields with processing_time_ms measured now.
// Returns nil when WithResponseMeta is not installed.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaOf(c)
	if meta == nil {
		return nil
	}
	out := make(map[string]interface{}, len(meta.fields)+1)
	for k, v := range meta.fields {
		out[k] = v
	}
	out["processing_time_ms"] = time.Since(meta.start).Milliseconds()
	return out
}
