package quizbank

import (
	"bytes"
	"embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tetrispositiva/diagnostico/internal/model"
	"github.com/tetrispositiva/diagnostico/internal/wire"
)

//go:embed seed/*.yaml
var seedFS embed.FS

// Decode parses one or more diagnostics from YAML or JSON. A file may hold a
// single document, a list, or several YAML documents separated by "---".
func Decode(data []byte) ([]model.Diagnostic, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []model.Diagnostic
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse diagnostic file: %w", err)
		}
		docs, err := decodeNode(&node)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("parse diagnostic file: no diagnostics found")
	}
	return out, nil
}

func decodeNode(node *yaml.Node) ([]model.Diagnostic, error) {
	root := node
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	var items []wire.Diagnostic
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&items); err != nil {
			return nil, fmt.Errorf("decode diagnostic list: %w", err)
		}
	case yaml.MappingNode:
		var one wire.Diagnostic
		if err := root.Decode(&one); err != nil {
			return nil, fmt.Errorf("decode diagnostic: %w", err)
		}
		items = append(items, one)
	default:
		return nil, fmt.Errorf("decode diagnostic: unexpected YAML node kind %d", root.Kind)
	}

	out := make([]model.Diagnostic, 0, len(items))
	for _, w := range items {
		out = append(out, w.Model())
	}
	return out, nil
}

// Default returns the built-in "Score Lucro Livre" diagnostic.
func Default() (model.Diagnostic, error) {
	data, err := seedFS.ReadFile("seed/diagnostico-financeiro.yaml")
	if err != nil {
		return model.Diagnostic{}, fmt.Errorf("read default diagnostic: %w", err)
	}
	ds, err := Decode(data)
	if err != nil {
		return model.Diagnostic{}, err
	}
	return ds[0], nil
}
