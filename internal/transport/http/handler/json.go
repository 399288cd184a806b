package handler

import "encoding/json"

const timeLayout = "2006-01-02T15:04:05Z07:00"

func jsonMarshal(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
