package queryclient

import "encoding/json"

// jsonCodec mirrors streamclient's per-call JSON codec for the same reason:
// no generated exchange-query client stubs are vendored into this module.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

const codecName = "json"
