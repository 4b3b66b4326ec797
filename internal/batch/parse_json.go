package batch

import (
	"encoding/json"

	"github.com/haasonsaas/aiwhisperer/internal/errs"
)

const maxParamDepth = 10

func parseJSON(data []byte) (*Script, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errs.Wrap(errs.KindSyntaxError, err, "invalid json").WithStage("batch_parse")
	}
	if depth := valueDepth(raw); depth > maxParamDepth {
		return nil, errs.New(errs.KindNestingTooDeep, "script nesting exceeds depth limit of 10").WithStage("batch_parse")
	}
	return scriptFromRaw(raw, FormatJSON)
}
