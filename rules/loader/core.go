package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fluxforge/corescheduler/rules/schema"
)

// LoadDirectory walks dir for *.yaml/*.yml files and runs the two-pass load
// (§4.9): parse each file's envelope, resolve `extends`, deep-merge, and
// return every rule that parsed and resolved cleanly. A bad file never
// aborts the batch — it is recorded in Skipped.
func LoadDirectory(dir string) (LoadResult, error) {
	paths, err := collectRuleFiles(dir)
	if err != nil {
		return LoadResult{}, err
	}

	byID := make(map[string]Document, len(paths))
	var skipped []LoadStatus

	for _, path := range paths {
		doc, reason, ok := parseFile(path)
		if !ok {
			skipped = append(skipped, LoadStatus{Path: path, Reason: reason})
			continue
		}
		if existing, dup := byID[doc.Metadata.ID]; dup {
			skipped = append(skipped, LoadStatus{
				Path:   path,
				Reason: fmt.Sprintf("duplicate rule id %q (already defined in %s)", doc.Metadata.ID, existing.Path),
			})
			continue
		}
		byID[doc.Metadata.ID] = Document{Doc: doc, Path: path}
	}

	resolved, mergeSkipped := resolveExtends(byID)
	skipped = append(skipped, mergeSkipped...)

	return LoadResult{Loaded: resolved, Skipped: skipped}, nil
}

// parseFile decodes the file into a RuleDocument in a single decode (the
// envelope fields plus the spec as a generic map, unknown top-level fields
// rejected) and then validates the envelope. No kind-specific body is
// decoded here.
func parseFile(path string) (schema.RuleDocument, string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema.RuleDocument{}, err.Error(), false
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var doc schema.RuleDocument
	if err := dec.Decode(&doc); err != nil {
		return schema.RuleDocument{}, err.Error(), false
	}
	if err := doc.Validate(); err != nil {
		return schema.RuleDocument{}, err.Error(), false
	}
	return doc, "", true
}

func collectRuleFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}
