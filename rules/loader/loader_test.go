package loader

import (
	"os"
	"path/filepath"
	"testing"
)

const ruleA = `
apiVersion: v1
kind: AnomalyRule
metadata:
  id: rule-a
  name: Rule A
spec:
  threshold: 3
  window: 1h
  schedule:
    cron: "0 */5 * * * *"
    timezone: UTC
`

const ruleBExtendsA = `
apiVersion: v1
kind: AnomalyRule
metadata:
  id: rule-b
  name: Rule B
  extends: rule-a
spec:
  threshold: 5
`

const ruleInvalidYAML = `
apiVersion: v1
kind: AnomalyRule
metadata: [this is not a mapping
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
}

// S3: B extends A; A has threshold=3,window=1h; B sets threshold=5.
// B's effective spec: threshold=5, window=1h.
func TestLoadDirectoryResolvesExtends(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", ruleA)
	writeFile(t, dir, "b.yaml", ruleBExtendsA)

	result, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(result.Skipped) != 0 {
		t.Fatalf("expected no skipped files, got %+v", result.Skipped)
	}
	if len(result.Loaded) != 2 {
		t.Fatalf("expected 2 loaded rules, got %d", len(result.Loaded))
	}

	var b *Document
	for i := range result.Loaded {
		if result.Loaded[i].Doc.Metadata.ID == "rule-b" {
			b = &result.Loaded[i]
		}
	}
	if b == nil {
		t.Fatal("rule-b not found in loaded set")
	}
	if b.Doc.Spec["threshold"] != 5 {
		t.Errorf("rule-b threshold = %v, want 5 (child override)", b.Doc.Spec["threshold"])
	}
	if b.Doc.Spec["window"] != "1h" {
		t.Errorf("rule-b window = %v, want 1h (inherited)", b.Doc.Spec["window"])
	}
}

// S6: one invalid file among otherwise-valid rules is reported skipped;
// valid rules still load.
func TestLoadDirectorySkipsInvalidFileWithoutAbortingBatch(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, dir, ruleFileName(i), validStandaloneRule(ruleFileName(i)))
	}
	writeFile(t, dir, "broken.yaml", ruleInvalidYAML)

	result, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(result.Loaded) != 10 {
		t.Errorf("loaded = %d, want 10", len(result.Loaded))
	}
	if len(result.Skipped) != 1 {
		t.Errorf("skipped = %d, want 1", len(result.Skipped))
	}
}

func TestLoadDirectoryDetectsCircularExtends(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "x.yaml", `
apiVersion: v1
kind: AnomalyRule
metadata:
  id: rule-x
  name: X
  extends: rule-y
spec: {}
`)
	writeFile(t, dir, "y.yaml", `
apiVersion: v1
kind: AnomalyRule
metadata:
  id: rule-y
  name: Y
  extends: rule-x
spec: {}
`)

	result, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(result.Loaded) != 0 {
		t.Errorf("expected no rules to load from a circular extends pair, got %d", len(result.Loaded))
	}
	if len(result.Skipped) != 2 {
		t.Fatalf("expected both rules skipped, got %+v", result.Skipped)
	}
	for _, s := range result.Skipped {
		if _, ok := isCircularReason(s.Reason); !ok {
			t.Errorf("expected circular dependency reason, got %q", s.Reason)
		}
	}
}

func TestLoadDirectoryRejectsDuplicateID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a1.yaml", ruleA)
	writeFile(t, dir, "a2.yaml", ruleA)

	result, err := LoadDirectory(dir)
	if err != nil {
		t.Fatalf("LoadDirectory: %v", err)
	}
	if len(result.Loaded) != 1 {
		t.Errorf("expected exactly one of the duplicate-id files to load, got %d", len(result.Loaded))
	}
	if len(result.Skipped) != 1 {
		t.Errorf("expected the duplicate to be skipped, got %+v", result.Skipped)
	}
}

func ruleFileName(i int) string { return "rule-" + string(rune('a'+i)) + ".yaml" }

func validStandaloneRule(name string) string {
	return `
apiVersion: v1
kind: AnomalyRule
metadata:
  id: ` + name + `
  name: ` + name + `
spec:
  threshold: 1
`
}

func isCircularReason(reason string) (string, bool) {
	if reason == "" {
		return "", false
	}
	for _, substr := range []string{"circular", "extends target"} {
		if contains(reason, substr) {
			return reason, true
		}
	}
	return reason, false
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
