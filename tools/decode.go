package tools

import (
	"encoding/json"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/reagent/chatmodel"
	"github.com/effective-security/reagent/pkg/llmutils"
)

// DecodeInput unmarshals model-produced tool arguments into ret.
// Models wrap JSON in prose or backticks and occasionally emit slightly
// broken JSON, so the input is cleaned first and a lenient parser is used
// as fallback before giving up with ErrFailedUnmarshalInput.
func DecodeInput(input string, ret any) error {
	data := llmutils.CleanJSON([]byte(input))
	if err := json.Unmarshal(data, ret); err == nil {
		return nil
	}
	if err := ljson.Unmarshal(data, ret); err != nil {
		return errors.WithStack(chatmodel.ErrFailedUnmarshalInput)
	}
	return nil
}
