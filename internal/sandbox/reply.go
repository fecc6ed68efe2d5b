package sandbox

import (
	"embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas
var schemaFiles embed.FS

var replySchema = mustCompileReplySchema()

func mustCompileReplySchema() *jsonschema.Schema {
	data, err := schemaFiles.ReadFile("schemas/reply.json")
	if err != nil {
		panic(fmt.Sprintf("reading reply schema: %v", err))
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := "https://pokerplayground.dev/schemas/reply.json"
	if err := compiler.AddResource(url, strings.NewReader(string(data))); err != nil {
		panic(fmt.Sprintf("adding reply schema: %v", err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("compiling reply schema: %v", err))
	}
	return schema
}

// normalizeReply converts an arbitrary bot reply value into a Decision.
// The reply must be a mapping with a string action and an
// integer-convertible amount; anything else is invalid_response.
func normalizeReply(v any) Decision {
	// Round-trip through JSON so schema validation sees canonical types
	// regardless of how the reply was produced.
	encoded, err := json.Marshal(v)
	if err != nil {
		return errorDecision(ErrKindInvalidResponse)
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return errorDecision(ErrKindInvalidResponse)
	}

	if err := replySchema.Validate(decoded); err != nil {
		return errorDecision(ErrKindInvalidResponse)
	}

	reply := decoded.(map[string]any)
	action := reply["action"].(string)

	amount := 0
	if raw, ok := reply["amount"]; ok {
		amount, ok = convertAmount(raw)
		if !ok {
			return errorDecision(ErrKindInvalidResponse)
		}
	}

	return Decision{Action: action, Amount: amount}
}

func convertAmount(raw any) (int, bool) {
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
