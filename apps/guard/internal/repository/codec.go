package repository

import (
	"encoding/json"
	"fmt"

	"EduServer/model"
)

// encodeFields 每个字段单独序列化为 JSON，nil 写为 null
func encodeFields(fields map[string]any) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

// decodeDocument 把字段拼成一个 JSON 对象后整体反序列化
func decodeDocument(accountID string, fields map[string]string, version int64) (*model.AccountSecurityState, error) {
	raw := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		if !json.Valid([]byte(v)) {
			return nil, fmt.Errorf("%w: field %s", ErrCorruptDocument, k)
		}
		raw[k] = json.RawMessage(v)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	state := &model.AccountSecurityState{}
	if err := json.Unmarshal(b, state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	if state.AccountID == "" {
		state.AccountID = accountID
	}
	state.Version = version
	return state, nil
}
