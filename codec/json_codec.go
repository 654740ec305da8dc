package codec

import (
	"encoding/json"
)

// JSONCodec packs messages with encoding/json. Human-readable and
// cross-language at the cost of size and speed.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
