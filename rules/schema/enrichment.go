package schema

// OpenSearchEnrichment is an optional post-filter run against OpenSearch
// after the detection composition passes, narrowing matches by a hit-count
// bound on the enrichment query's result.
type OpenSearchEnrichment struct {
	Query     string `yaml:"query"`
	MinHits   *int   `yaml:"min_hits,omitempty"`
	MaxHits   *int   `yaml:"max_hits,omitempty"`
	RateLimit int    `yaml:"rate_limit,omitempty"` // per minute, default 60
	TimeoutMS int    `yaml:"timeout_ms,omitempty"`
}

// EffectiveRateLimit returns RateLimit or the default of 60/minute.
func (e OpenSearchEnrichment) EffectiveRateLimit() int {
	if e.RateLimit <= 0 {
		return 60
	}
	return e.RateLimit
}

// EvaluateHitBounds reports whether hits passes this enrichment's bounds.
// With both bounds absent, the default is "at least one hit" — mirroring
// the convention that an enrichment with no configured bounds still exists
// to confirm something enriches, not to pass through unconditionally.
func (e OpenSearchEnrichment) EvaluateHitBounds(hits int) bool {
	if e.MinHits == nil && e.MaxHits == nil {
		return hits > 0
	}
	if e.MinHits != nil && hits < *e.MinHits {
		return false
	}
	if e.MaxHits != nil && hits > *e.MaxHits {
		return false
	}
	return true
}
