// internal/rules/document.go
package rules

import (
	"strings"

	"github.com/solatis/modmail/internal/types"
	"gopkg.in/yaml.v3"
)

/*
 * Rule configuration parsing.
 *
 * Turns the wiki page text into an ordered list of flat documents. Sections are
 * separated by a line that is exactly "---". Each section is decoded into a
 * yaml.Node and walked directly instead of decoded into a map: a map would lose
 * declaration order and yaml.v3 rejects duplicate keys when decoding into maps,
 * while rules depend on both (priority ties, last duplicate wins).
 *
 * Flattening: a top-level key whose value is a mapping contributes its inner keys
 * as "outer.inner" (author: {is_moderator: true} -> author.is_moderator).
 *
 * Kept leaf values: string, int64, bool, []any. Nulls, floats, timestamps and
 * nested mappings below the first level are dropped. Sections whose root is not
 * a mapping, or that keep no pairs, are skipped.
 */

// Entry is one flattened key/value pair in declaration order.
type Entry struct {
	Key   string
	Value any // string, int64, bool or []any of those
}

// Document is one flattened configuration section.
type Document []Entry

// Lookup returns the last value declared under key.
func (d Document) Lookup(key string) (any, bool) {
	for i := len(d) - 1; i >= 0; i-- {
		if d[i].Key == key {
			return d[i].Value, true
		}
	}
	return nil, false
}

// ParseDocuments splits text into sections and flattens each one.
// Returns *types.ConfigParseError for the first section that is not valid YAML.
func ParseDocuments(text string) ([]Document, error) {
	var docs []Document
	for _, section := range splitSections(text) {
		if section == "" {
			continue
		}

		var root yaml.Node
		if err := yaml.Unmarshal([]byte(section), &root); err != nil {
			return nil, &types.ConfigParseError{Section: section, Err: err}
		}

		doc := flattenSection(&root)
		if len(doc) == 0 {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// splitSections splits on lines that are exactly "---", trimming surrounding newlines.
func splitSections(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var sections []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if line == "---" {
			sections = append(sections, strings.Trim(strings.Join(current, "\n"), "\n"))
			current = current[:0]
			continue
		}
		current = append(current, line)
	}
	return append(sections, strings.Trim(strings.Join(current, "\n"), "\n"))
}

func flattenSection(root *yaml.Node) Document {
	top := root
	if top.Kind == yaml.DocumentNode {
		if len(top.Content) == 0 {
			return nil
		}
		top = top.Content[0]
	}
	top = resolveAlias(top)
	if top.Kind != yaml.MappingNode {
		return nil
	}

	var doc Document
	for i := 0; i+1 < len(top.Content); i += 2 {
		key := top.Content[i].Value
		value := resolveAlias(top.Content[i+1])

		if value.Kind == yaml.MappingNode {
			for j := 0; j+1 < len(value.Content); j += 2 {
				inner := value.Content[j].Value
				if v, ok := leafValue(resolveAlias(value.Content[j+1])); ok {
					doc = append(doc, Entry{Key: key + "." + inner, Value: v})
				}
			}
			continue
		}

		if v, ok := leafValue(value); ok {
			doc = append(doc, Entry{Key: key, Value: v})
		}
	}
	return doc
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

// leafValue converts a node to a kept leaf value.
func leafValue(n *yaml.Node) (any, bool) {
	switch n.Kind {
	case yaml.ScalarNode:
		return scalarValue(n)
	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			item = resolveAlias(item)
			if item.Kind != yaml.ScalarNode {
				continue
			}
			if v, ok := scalarValue(item); ok {
				items = append(items, v)
			}
		}
		return items, true
	default:
		return nil, false
	}
}

func scalarValue(n *yaml.Node) (any, bool) {
	switch n.ShortTag() {
	case "!!str":
		return n.Value, true
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, false
		}
		return b, true
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			// Out of int64 range; keep the text so thresholds can still reject it.
			return n.Value, true
		}
		return i, true
	default:
		return nil, false
	}
}
