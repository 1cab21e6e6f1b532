// Package metrics provides constants used across metric definitions.
package metrics

// Operation names recorded by the recognition pipeline and the datastore.
const (
	OpDetect         = "detect"
	OpClassify       = "classify"
	OpStore          = "store"
	OpAnnotate       = "annotate"
	OpDecode         = "decode"
	OpDbQuery        = "db_query"
	OpDbInsert       = "db_insert"
	OpDbUpdate       = "db_update"
	OpDbDelete       = "db_delete"
	OpCacheLookup    = "cache_lookup"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusError      = "error"
	CacheHit         = "hit"
	CacheMiss        = "miss"
	ResultFound      = "found"
	ResultNotFound   = "not_found"
	EndpointDetect   = "detect_fish"
	EndpointIdentify = "identify_fish"
)

// Histogram bucket parameters.
const (
	BucketStart1ms   = 0.001
	BucketStart10ms  = 0.01
	BucketStart100B  = 100
	BucketFactor2    = 2
	BucketFactor10   = 10
	BucketCount6     = 6
	BucketCount12    = 12
	BucketCount15    = 15
	ConfidenceBucket = 0.05
	ConfidenceCount  = 20
)
