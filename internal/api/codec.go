package api

import "encoding/json"

// jsonCodec carries control messages as JSON. The API is local-only and its
// messages are plain Go structs, so there is no generated protobuf layer.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
