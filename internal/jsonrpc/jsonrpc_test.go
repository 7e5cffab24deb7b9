package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestParseSingleEmptyBodyIsNull(t *testing.T) {
	env := Parse(nil)
	if env.Malformed || env.Batch != nil {
		t.Fatalf("expected single-null envelope, got %+v", env)
	}
	if string(env.Single) != "null" {
		t.Fatalf("expected null, got %s", env.Single)
	}
}

func TestParseSingleObject(t *testing.T) {
	env := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"getSlot"}`))
	if env.Malformed || env.Batch != nil {
		t.Fatalf("expected single envelope, got %+v", env)
	}
}

func TestParseBatch(t *testing.T) {
	env := Parse([]byte(`[{"jsonrpc":"2.0","id":1,"method":"getSlot"},{"jsonrpc":"2.0","id":2,"method":"getBlockHeight"}]`))
	if env.Malformed || env.Batch == nil || len(env.Batch) != 2 {
		t.Fatalf("expected 2-entry batch envelope, got %+v", env)
	}
}

func TestParseMalformed(t *testing.T) {
	env := Parse([]byte(`{not json`))
	if !env.Malformed {
		t.Fatalf("expected malformed envelope")
	}
}

func TestExtractMethodsSingle(t *testing.T) {
	env := Parse([]byte(`{"jsonrpc":"2.0","id":1,"method":"getSlot"}`))
	methods := ExtractMethods(env)
	if len(methods) != 1 || methods[0] != "getSlot" {
		t.Fatalf("unexpected methods: %v", methods)
	}
}

func TestExtractMethodsBatchSkipsMissing(t *testing.T) {
	env := Parse([]byte(`[{"id":1,"method":"getSlot"},{"id":2},{"id":3,"method":7}]`))
	methods := ExtractMethods(env)
	if len(methods) != 1 || methods[0] != "getSlot" {
		t.Fatalf("expected only getSlot to be extracted, got %v", methods)
	}
}

func TestExtractMethodsBatchAllMissingIsEmptyNotNil(t *testing.T) {
	env := Parse([]byte(`[{"id":1},{"id":2}]`))
	methods := ExtractMethods(env)
	if len(methods) != 0 {
		t.Fatalf("expected empty method list, got %v", methods)
	}
	if methods == nil {
		t.Fatalf("expected a non-nil empty method list, got nil")
	}
}

func TestShapeErrorSingleUsesRequestID(t *testing.T) {
	env := Parse([]byte(`{"jsonrpc":"2.0","id":7,"method":"getProgramAccounts"}`))
	body := ShapeError(env, CodeMethodNotFound, "Method not allowed: getProgramAccounts")

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(decoded["id"]) != "7" {
		t.Fatalf("expected id 7, got %s", decoded["id"])
	}
}

func TestShapeErrorMalformedUsesNullID(t *testing.T) {
	env := Parse([]byte(`{not json`))
	body := ShapeError(env, CodeParseError, "Parse error: Invalid JSON.")

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(decoded["id"]) != "null" {
		t.Fatalf("expected null id, got %s", decoded["id"])
	}
}

func TestShapeErrorBatchProducesArrayWithPerEntryIDs(t *testing.T) {
	env := Parse([]byte(`[{"id":1},{"id":2}]`))
	body := ShapeError(env, CodeInvalidRequest, "Invalid Request.")

	var decoded []map[string]json.RawMessage
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 error objects, got %d", len(decoded))
	}
	if string(decoded[0]["id"]) != "1" || string(decoded[1]["id"]) != "2" {
		t.Fatalf("ids not preserved: %+v", decoded)
	}
}
