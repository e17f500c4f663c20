package validate

import (
	"encoding/json"
	"testing"

	"fluxcore/flux"
)

func parseDef(t *testing.T, raw string) *flux.Definition {
	t.Helper()
	var def flux.Definition
	if err := json.Unmarshal([]byte(raw), &def); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &def
}

func TestDefinitionKnownGoodIsValid(t *testing.T) {
	def := parseDef(t, `{
		"endpoint": "/hello",
		"method": "GET",
		"flow": [
			{"type":"action","name":"r","path":"hello"},
			{"type":"return","body":"${r}"}
		]
	}`)

	result := Definition(def)
	if !result.Valid {
		t.Fatalf("expected valid, got errors: %v", result.Errors)
	}
}

func TestDefinitionMissingActionPath(t *testing.T) {
	def := parseDef(t, `{
		"endpoint": "/x",
		"method": "GET",
		"flow": [{"type":"action","name":"x"}]
	}`)

	result := Definition(def)
	if result.Valid {
		t.Fatal("expected invalid due to missing action.path")
	}

	found := false
	for _, e := range result.Errors {
		if e.Path == "flow[0].path" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected error referencing flow[0].path, got %v", result.Errors)
	}
}

func TestDefinitionUnsupportedMethod(t *testing.T) {
	def := parseDef(t, `{"endpoint":"/x","method":"TRACE","flow":[{"type":"return","body":1}]}`)
	result := Definition(def)
	if result.Valid {
		t.Fatal("expected invalid for unsupported method")
	}
}

func TestDefinitionUnknownNodeType(t *testing.T) {
	def := parseDef(t, `{"endpoint":"/x","method":"GET","flow":[{"type":"bogus"}]}`)
	result := Definition(def)
	if result.Valid {
		t.Fatal("expected invalid for unknown node type")
	}
}

func TestDefinitionRecursesIntoNestedNodes(t *testing.T) {
	def := parseDef(t, `{
		"endpoint": "/x",
		"method": "POST",
		"flow": [
			{"type":"condition","if":"${input.flag}","then":[{"type":"action","name":"a"}],"else":[]}
		]
	}`)

	result := Definition(def)
	if result.Valid {
		t.Fatal("expected invalid: nested action missing path")
	}
	found := false
	for _, e := range result.Errors {
		if e.Path == "flow[0].then[0].path" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected nested error path, got %v", result.Errors)
	}
}

func TestDefinitionExtraKeysTolerated(t *testing.T) {
	def := parseDef(t, `{
		"endpoint": "/x",
		"method": "GET",
		"description": "ignored by the executor",
		"flow": [{"type":"return","body":1,"extra":"field"}]
	}`)

	result := Definition(def)
	if !result.Valid {
		t.Fatalf("expected valid, extra keys should be tolerated: %v", result.Errors)
	}
}
