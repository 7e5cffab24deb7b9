// Package jsonrpc implements the minimal JSON-RPC 2.0 envelope parsing and
// error shaping the gateway needs: enough to classify a request by method
// and produce spec-shaped error envelopes, without ever re-serializing a
// well-formed request body (that goes upstream byte-for-byte).
package jsonrpc

import "encoding/json"

// Standard JSON-RPC 2.0 error codes used by the gateway's own error paths.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
)

// Envelope is the tagged sum a raw HTTP body parses into: exactly one of
// Single, Batch is non-nil, or the body was malformed.
type Envelope struct {
	Single    json.RawMessage
	Batch     []json.RawMessage
	Malformed bool
}

// request is the subset of a JSON-RPC request object the gateway inspects.
type request struct {
	ID     json.RawMessage `json:"id"`
	Method json.RawMessage `json:"method"`
}

// Parse classifies a raw body: an empty body parses as a single null value,
// a JSON object is a Single envelope, a JSON array is a Batch envelope, and
// anything that fails to unmarshal at all is Malformed.
func Parse(raw []byte) Envelope {
	trimmed := trimSpace(raw)
	if len(trimmed) == 0 {
		return Envelope{Single: json.RawMessage("null")}
	}

	switch trimmed[0] {
	case '[':
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return Envelope{Malformed: true}
		}
		return Envelope{Batch: batch}
	default:
		var probe json.RawMessage
		if err := json.Unmarshal(trimmed, &probe); err != nil {
			return Envelope{Malformed: true}
		}
		return Envelope{Single: probe}
	}
}

func trimSpace(raw []byte) []byte {
	start, end := 0, len(raw)
	for start < end && isJSONSpace(raw[start]) {
		start++
	}
	for end > start && isJSONSpace(raw[end-1]) {
		end--
	}
	return raw[start:end]
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// ExtractMethods returns the method names present in the envelope. For a
// Single payload carrying a string "method" field it is a one-element
// list; entries (single or batch) without a string method contribute
// nothing, and a batch may legally yield an empty list if no entry has one.
func ExtractMethods(env Envelope) []string {
	if env.Batch != nil {
		methods := make([]string, 0, len(env.Batch))
		for _, entry := range env.Batch {
			if m, ok := methodOf(entry); ok {
				methods = append(methods, m)
			}
		}
		return methods
	}
	if m, ok := methodOf(env.Single); ok {
		return []string{m}
	}
	return nil
}

func methodOf(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", false
	}
	var method string
	if err := json.Unmarshal(req.Method, &method); err != nil {
		return "", false
	}
	return method, true
}

// idOf extracts the "id" field of a single request object, defaulting to
// JSON null when absent or unparseable.
func idOf(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	var req request
	if err := json.Unmarshal(raw, &req); err != nil || len(req.ID) == 0 {
		return json.RawMessage("null")
	}
	return req.ID
}

// ErrorObject is the JSON-RPC "error" member of a response envelope.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// errorResponse is a single JSON-RPC error response object.
type errorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   ErrorObject     `json:"error"`
}

// ShapeError builds the gateway-synthesized JSON-RPC error body for env:
// a single object carrying the request's id (or null) when env is a Single
// payload or malformed, and an array of one error object per batch entry
// (each carrying that entry's id, or null) when env is a Batch payload.
func ShapeError(env Envelope, code int, message string) []byte {
	errObj := ErrorObject{Code: code, Message: message}

	if env.Batch != nil {
		responses := make([]errorResponse, 0, len(env.Batch))
		for _, entry := range env.Batch {
			responses = append(responses, errorResponse{
				JSONRPC: "2.0",
				ID:      idOf(entry),
				Error:   errObj,
			})
		}
		out, err := json.Marshal(responses)
		if err != nil {
			return []byte(`[]`)
		}
		return out
	}

	resp := errorResponse{
		JSONRPC: "2.0",
		ID:      idOf(env.Single),
		Error:   errObj,
	}
	out, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return out
}
