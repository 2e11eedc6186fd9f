package loader

import (
	"fmt"

	"github.com/fluxforge/corescheduler/rules/schema"
)

// Document is a fully parsed rule, ready for the extends resolution pass.
type Document struct {
	Doc  schema.RuleDocument
	Path string
}

// resolveExtends merges every document's `extends` chain breadth-first from
// the leaf upward, detecting cycles. Documents with an unresolvable
// `extends` target (parent never loaded) are reported as skipped rather
// than silently dropped.
func resolveExtends(byID map[string]Document) ([]Document, []LoadStatus) {
	resolved := make(map[string]schema.RuleDocument, len(byID))
	var skipped []LoadStatus

	var resolve func(id string, chain []string) (schema.RuleDocument, error)
	resolve = func(id string, chain []string) (schema.RuleDocument, error) {
		if doc, ok := resolved[id]; ok {
			return doc, nil
		}
		entry, ok := byID[id]
		if !ok {
			return schema.RuleDocument{}, fmt.Errorf("loader: extends target %q not found", id)
		}
		for _, seen := range chain {
			if seen == id {
				return schema.RuleDocument{}, &CircularDependencyError{Chain: append(chain, id)}
			}
		}

		if entry.Doc.Metadata.Extends == "" {
			resolved[id] = entry.Doc
			return entry.Doc, nil
		}

		parent, err := resolve(entry.Doc.Metadata.Extends, append(chain, id))
		if err != nil {
			return schema.RuleDocument{}, err
		}
		merged := entry.Doc.Merge(parent)
		resolved[id] = merged
		return merged, nil
	}

	var out []Document
	for id, entry := range byID {
		doc, err := resolve(id, nil)
		if err != nil {
			skipped = append(skipped, LoadStatus{Path: entry.Path, Reason: err.Error()})
			continue
		}
		out = append(out, Document{Doc: doc, Path: entry.Path})
	}
	return out, skipped
}
