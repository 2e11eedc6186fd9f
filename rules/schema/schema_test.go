package schema

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEnvelopeValidateRejectsUnsupportedKind(t *testing.T) {
	e := Envelope{APIVersion: "v1", Kind: Kind("NotARealKind"), Metadata: CommonMetadata{ID: "x"}}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for unsupported kind")
	}
}

func TestEnvelopeValidateAcceptsAnomalyRule(t *testing.T) {
	e := Envelope{APIVersion: "v1", Kind: KindAnomalyRule, Metadata: CommonMetadata{ID: "x"}}
	if err := e.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCommonMetadataIsEnabledDefaultsTrue(t *testing.T) {
	m := CommonMetadata{ID: "x"}
	if !m.IsEnabled() {
		t.Fatal("expected IsEnabled() true when Enabled is unset")
	}
	f := false
	m.Enabled = &f
	if m.IsEnabled() {
		t.Fatal("expected IsEnabled() false when Enabled explicitly set false")
	}
}

const anomalyYAML = `
apiVersion: v1
kind: AnomalyRule
metadata:
  id: suspicious-login
  name: Suspicious login burst
spec:
  detection:
    signal: zscore
    feature: login_rate
    threshold: 3.5
  enrichment:
    query: "event.type:login"
    min_hits: 1
    max_hits: 50
  notifications:
    - channel: slack
      target: "#security"
  schedule:
    cron: "0 */5 * * * *"
    timezone: UTC
    cooldown: 10m
`

func TestRoundTripAnomalyRule(t *testing.T) {
	var doc RuleDocument
	if err := yaml.Unmarshal([]byte(anomalyYAML), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := doc.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	spec, err := doc.DecodeAnomalySpec()
	if err != nil {
		t.Fatalf("DecodeAnomalySpec: %v", err)
	}
	if !spec.Detection.IsLeaf() || spec.Detection.Leaf.Signal != SignalZScore {
		t.Fatalf("expected leaf zscore signal, got %+v", spec.Detection)
	}
	if spec.Detection.Leaf.Threshold != 3.5 {
		t.Errorf("threshold = %v, want 3.5", spec.Detection.Leaf.Threshold)
	}
	if spec.Enrichment == nil || spec.Enrichment.Query == "" {
		t.Fatal("expected enrichment to decode")
	}
	if spec.Schedule.Cron != "0 */5 * * * *" {
		t.Errorf("cron = %q", spec.Schedule.Cron)
	}
	if len(spec.Notifications) != 1 || spec.Notifications[0].Channel != "slack" {
		t.Errorf("notifications = %+v", spec.Notifications)
	}
}

// S3: B extends A; A has threshold=3,window=1h; B overrides threshold=5.
// B's effective spec must be threshold=5, window=1h.
func TestMergeChildOverridesScalarKeepsParentKeys(t *testing.T) {
	parent := RuleDocument{Spec: map[string]interface{}{"threshold": 3, "window": "1h"}}
	child := RuleDocument{Spec: map[string]interface{}{"threshold": 5}}

	merged := child.Merge(parent)

	if merged.Spec["threshold"] != 5 {
		t.Errorf("threshold = %v, want 5", merged.Spec["threshold"])
	}
	if merged.Spec["window"] != "1h" {
		t.Errorf("window = %v, want 1h (inherited from parent)", merged.Spec["window"])
	}
}

func TestMergeNestedMapsMergeKeyByKey(t *testing.T) {
	parent := RuleDocument{Spec: map[string]interface{}{
		"detection": map[string]interface{}{"signal": "zscore", "threshold": 3.0},
	}}
	child := RuleDocument{Spec: map[string]interface{}{
		"detection": map[string]interface{}{"threshold": 4.5},
	}}

	merged := child.Merge(parent)
	detection := merged.Spec["detection"].(map[string]interface{})
	if detection["signal"] != "zscore" {
		t.Errorf("signal = %v, want zscore (inherited)", detection["signal"])
	}
	if detection["threshold"] != 4.5 {
		t.Errorf("threshold = %v, want 4.5 (overridden)", detection["threshold"])
	}
}

func TestMergeSequenceReplacedWholesale(t *testing.T) {
	parent := RuleDocument{Spec: map[string]interface{}{
		"tags": []interface{}{"a", "b", "c"},
	}}
	child := RuleDocument{Spec: map[string]interface{}{
		"tags": []interface{}{"x"},
	}}

	merged := child.Merge(parent)
	tags := merged.Spec["tags"].([]interface{})
	if len(tags) != 1 || tags[0] != "x" {
		t.Errorf("tags = %v, want [x] (sequence replaced wholesale, not merged)", tags)
	}
}
