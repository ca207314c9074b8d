package domain

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GroupSpec is one category group of a taxonomy with its ordered categories.
type GroupSpec struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

// Taxonomy is an ordered list of category groups. In YAML it is written as a
// mapping of group name to a list of category names; the mapping order is kept.
type Taxonomy struct {
	Groups []GroupSpec `json:"groups"`
}

// IsEmpty reports whether the taxonomy has no groups.
func (t Taxonomy) IsEmpty() bool { return len(t.Groups) == 0 }

// Clone returns a deep copy.
func (t Taxonomy) Clone() Taxonomy {
	if t.Groups == nil {
		return Taxonomy{}
	}
	groups := make([]GroupSpec, len(t.Groups))
	for i, g := range t.Groups {
		groups[i] = GroupSpec{Name: g.Name, Categories: append([]string(nil), g.Categories...)}
	}
	return Taxonomy{Groups: groups}
}

// CategoryCount returns the total number of categories across all groups.
func (t Taxonomy) CategoryCount() int {
	n := 0
	for _, g := range t.Groups {
		n += len(g.Categories)
	}
	return n
}

// UnmarshalYAML decodes a mapping of group -> [categories] preserving order.
// Repeated group names are merged into the first occurrence.
func (t *Taxonomy) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*t = Taxonomy{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("taxonomy: line %d: expected a mapping of group to categories", node.Line)
	}

	var groups []GroupSpec
	index := make(map[string]int)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		name := strings.TrimSpace(keyNode.Value)
		if name == "" {
			return fmt.Errorf("taxonomy: line %d: empty group name", keyNode.Line)
		}

		var cats []string
		if !(valNode.Kind == yaml.ScalarNode && valNode.Tag == "!!null") {
			if err := valNode.Decode(&cats); err != nil {
				return fmt.Errorf("taxonomy: group %q: %w", name, err)
			}
		}

		if pos, ok := index[strings.ToLower(name)]; ok {
			groups[pos].Categories = append(groups[pos].Categories, cats...)
			continue
		}
		index[strings.ToLower(name)] = len(groups)
		groups = append(groups, GroupSpec{Name: name, Categories: cats})
	}

	t.Groups = groups
	return nil
}

// MarshalYAML writes the taxonomy back as an ordered mapping.
func (t Taxonomy) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, g := range t.Groups {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, c := range g.Categories {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c})
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: g.Name},
			seq,
		)
	}
	return node, nil
}
