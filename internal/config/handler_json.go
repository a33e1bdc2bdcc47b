package config

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/jsonc"
)

func init() {
	RegisterHandler(jsonHandler{}, "json")
	RegisterHandler(jsoncHandler{}, "json5", "jsonc")
}

// jsonHandler implements the JSON config format with encoding/json. No
// third-party JSON decoder appears anywhere in the retrieval pack, so this
// is the one stdlib-only handler (see DESIGN.md).
type jsonHandler struct{}

func (jsonHandler) Loads(data []byte) (*Value, error) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}
	return fromGo(decoded)
}

func (jsonHandler) Dumps(v *Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	if err := enc.Encode(toGo(v)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// jsoncHandler implements JSON-with-comments by stripping comments with
// jsonc before delegating to the stdlib JSON decoder, mirroring gaps'
// JSON5Handler (which wraps pyjson5 the same way).
type jsoncHandler struct{}

func (jsoncHandler) Loads(data []byte) (*Value, error) {
	return jsonHandler{}.Loads(jsonc.ToJSON(data))
}

func (jsoncHandler) Dumps(v *Value) ([]byte, error) {
	return jsonHandler{}.Dumps(v)
}
