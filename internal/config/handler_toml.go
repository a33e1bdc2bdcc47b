package config

import (
	toml "github.com/pelletier/go-toml/v2"
)

func init() {
	RegisterHandler(tomlHandler{}, "toml")
}

// tomlHandler implements the TOML config format with go-toml/v2. Unlike the
// YAML handler, this one decodes through plain map[string]any: go-toml/v2
// has no public node-tree API for order-preserving round trips the way
// yaml.Node does, so TOML dumps are key-sorted rather than insertion-order.
type tomlHandler struct{}

func (tomlHandler) Loads(data []byte) (*Value, error) {
	var decoded map[string]any
	if err := toml.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return fromGo(decoded)
}

func (tomlHandler) Dumps(v *Value) ([]byte, error) {
	return toml.Marshal(toGo(v))
}
