package config

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

func init() {
	RegisterHandler(yamlHandler{}, "yaml", "yml")
}

// yamlHandler implements the YAML config format with yaml.v3. It walks
// yaml.Node directly, rather than decoding into map[string]any, so that key
// order is preserved on dump the way gaps' YAMLHandler dumps with
// sort_keys=False.
type yamlHandler struct{}

func (yamlHandler) Loads(data []byte) (*Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return Null(), nil
	}
	return fromYAMLNode(doc.Content[0])
}

func (yamlHandler) Dumps(v *Value) ([]byte, error) {
	node := toYAMLNode(v)
	return yaml.Marshal(node)
}

func fromYAMLNode(n *yaml.Node) (*Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return fromYAMLNode(n.Content[0])
	case yaml.ScalarNode:
		return fromYAMLScalar(n)
	case yaml.SequenceNode:
		items := make([]*Value, len(n.Content))
		for i, c := range n.Content {
			v, err := fromYAMLNode(c)
			if err != nil {
				return nil, err
			}
			items[i] = v
		}
		return List(items...), nil
	case yaml.MappingNode:
		m := Map()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, err := fromYAMLNode(n.Content[i])
			if err != nil {
				return nil, err
			}
			ks, err := key.AsString()
			if err != nil {
				return nil, fmt.Errorf("yaml: non-string map key at line %d", n.Content[i].Line)
			}
			val, err := fromYAMLNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(ks, val)
		}
		return m, nil
	case yaml.AliasNode:
		return fromYAMLNode(n.Alias)
	default:
		return Null(), nil
	}
}

func fromYAMLScalar(n *yaml.Node) (*Value, error) {
	switch n.Tag {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return Number(f), nil
	default:
		return String(n.Value), nil
	}
}

func toYAMLNode(v *Value) *yaml.Node {
	if v == nil || v.kind == KindNull {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
	switch v.kind {
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindNumber:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(v.n, 'g', -1, 64)}
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.s}
	case KindList:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, elem := range v.list {
			node.Content = append(node.Content, toYAMLNode(elem))
		}
		return node
	case KindMap:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range v.m.keys {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				toYAMLNode(v.m.values[k]),
			)
		}
		return node
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}
