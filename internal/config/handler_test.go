package config

import (
	"testing"
)

const sampleJSON = `{
	"execution_control": {
		"option": "local",
		"nodes": 2
	},
	"log_level": "INFO"
}`

const sampleYAML = `execution_control:
  option: local
  nodes: 2
log_level: INFO
`

const sampleTOML = `log_level = "INFO"

[execution_control]
option = "local"
nodes = 2
`

func TestJSONHandlerRoundTrip(t *testing.T) {
	h, err := HandlerFor("json")
	if err != nil {
		t.Fatal(err)
	}
	v, err := h.Loads([]byte(sampleJSON))
	if err != nil {
		t.Fatal(err)
	}
	assertExecutionControl(t, v)

	data, err := h.Dumps(v)
	if err != nil {
		t.Fatal(err)
	}
	v2, err := h.Loads(data)
	if err != nil {
		t.Fatalf("re-parsing dumped JSON: %v", err)
	}
	assertExecutionControl(t, v2)
}

func TestYAMLHandlerLoadsAndPreservesOrder(t *testing.T) {
	h, err := HandlerFor("yaml")
	if err != nil {
		t.Fatal(err)
	}
	v, err := h.Loads([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	assertExecutionControl(t, v)

	keys, err := v.Keys()
	if err != nil {
		t.Fatal(err)
	}
	if !equalStrings(keys, []string{"execution_control", "log_level"}) {
		t.Fatalf("YAML key order not preserved: %v", keys)
	}
}

func TestTOMLHandlerLoads(t *testing.T) {
	h, err := HandlerFor("toml")
	if err != nil {
		t.Fatal(err)
	}
	v, err := h.Loads([]byte(sampleTOML))
	if err != nil {
		t.Fatal(err)
	}
	assertExecutionControl(t, v)
}

func TestJSONCHandlerStripsComments(t *testing.T) {
	h, err := HandlerFor("json5")
	if err != nil {
		t.Fatal(err)
	}
	data := []byte(`{
		// inline comment
		"log_level": "INFO",
	}`)
	v, err := h.Loads(data)
	if err != nil {
		t.Fatal(err)
	}
	lvl, ok := v.Get("log_level")
	if !ok {
		t.Fatal("expected log_level key")
	}
	s, err := lvl.AsString()
	if err != nil || s != "INFO" {
		t.Fatalf("log_level = %q, %v", s, err)
	}
}

func TestHandlerForUnknownExtension(t *testing.T) {
	if _, err := HandlerFor("ini"); err == nil {
		t.Fatal("expected error for unregistered extension")
	}
}

func assertExecutionControl(t *testing.T, v *Value) {
	t.Helper()
	ec, ok := v.Get("execution_control")
	if !ok {
		t.Fatal("expected execution_control key")
	}
	opt, err := ec.GetOr("option", Null()).AsString()
	if err != nil || opt != "local" {
		t.Fatalf("execution_control.option = %q, %v", opt, err)
	}
	nodes, err := ec.GetOr("nodes", Null()).AsInt()
	if err != nil || nodes != 2 {
		t.Fatalf("execution_control.nodes = %v, %v", nodes, err)
	}
}
