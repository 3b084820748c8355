package config

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/litledger/internal/errs"
	"github.com/roach88/litledger/internal/formula"
	"github.com/roach88/litledger/internal/rules"
)

// AppendFormula adds f to the formulas list of the campaign file at path,
// creating the file if needed. Other content, comments included, is kept.
func AppendFormula(path string, f formula.Formula) error {
	return appendEntry(path, "formulas", formula.Formula{Name: f.Name, Expression: f.Expression})
}

// AppendRule adds s to the rules list of the campaign file at path.
func AppendRule(path string, s rules.Spec) error {
	return appendEntry(path, "rules", s)
}

func appendEntry(path, key string, entry any) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return errs.Wrap(errs.CodeConfiguration, err, "read config %s", path)
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return errs.Wrap(errs.CodeConfiguration, err, "parse config %s", path)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return errs.New(errs.CodeConfiguration, "config %s: top level is not a mapping", path)
	}

	var item yaml.Node
	if err := item.Encode(entry); err != nil {
		return errs.Wrap(errs.CodeConfiguration, err, "encode %s entry", key)
	}
	list := lookup(root, key)
	if list == nil {
		list = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		root.Content = append(root.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, list)
	}
	if list.Kind != yaml.SequenceNode {
		return errs.New(errs.CodeConfiguration, "config %s: %s is not a list", path, key)
	}
	list.Content = append(list.Content, &item)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return errs.Wrap(errs.CodeConfiguration, err, "encode config")
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return errs.Wrap(errs.CodePersistence, err, "write %s", path)
	}
	return nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
