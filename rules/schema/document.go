package schema

import "gopkg.in/yaml.v3"

// RuleDocument is the second-pass parse: the envelope plus its kind-specific
// spec, held as a generic map so `extends` deep-merge can operate uniformly
// across all six kinds before a kind-specific typed body is decoded out of
// it (today, only AnomalyRule decodes further — see AnomalySpec).
type RuleDocument struct {
	Envelope `yaml:",inline"`
	Spec     map[string]interface{} `yaml:"spec"`
}

// AnomalySpec is the typed body the Rule→Task Adapter actually evaluates.
// EntitySchema/FeatureConfig/ScoringConfig/TrendConfig/PatternConfig stop at
// RuleDocument.Spec — the loader still dispatches and merges them, but
// nothing decodes them further today.
type AnomalySpec struct {
	Detection     Composition           `yaml:"detection"`
	Enrichment    *OpenSearchEnrichment `yaml:"enrichment,omitempty"`
	Notifications []Notification        `yaml:"notifications,omitempty"`
	Schedule      Schedule              `yaml:"schedule"`
}

// DecodeAnomalySpec round-trips d.Spec through YAML into an AnomalySpec. It
// is only meaningful when d.Kind == KindAnomalyRule.
func (d RuleDocument) DecodeAnomalySpec() (AnomalySpec, error) {
	raw, err := yaml.Marshal(d.Spec)
	if err != nil {
		return AnomalySpec{}, err
	}
	var spec AnomalySpec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return AnomalySpec{}, err
	}
	return spec, nil
}

// Merge deep-merges parent's spec under child's: maps merge key by key
// (child wins on conflict), sequences are replaced wholesale by the child,
// scalars are replaced by the child. Metadata (including extends itself) is
// always the child's own — only the spec body is inherited.
func (child RuleDocument) Merge(parent RuleDocument) RuleDocument {
	merged := child
	merged.Spec = mergeSpecMaps(parent.Spec, child.Spec)
	return merged
}

func mergeSpecMaps(parent, child map[string]interface{}) map[string]interface{} {
	if parent == nil {
		return child
	}
	out := make(map[string]interface{}, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, childVal := range child {
		parentVal, existed := out[k]
		if existed {
			if parentMap, ok := asMap(parentVal); ok {
				if childMap, ok := asMap(childVal); ok {
					out[k] = mergeSpecMaps(parentMap, childMap)
					continue
				}
			}
		}
		out[k] = childVal
	}
	return out
}

// asMap reports whether v is a map[string]interface{}, the shape yaml.v3
// uses for objects whose keys are all strings. Any other map shape is not
// merged key by key; the child's value replaces it like a scalar.
func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}
