package streamclient

import "encoding/json"

// jsonCodec is a grpc/encoding.Codec that marshals with encoding/json
// instead of protobuf wire format. The chain stream service's generated
// client is not vendored into this module, so the raw stream is opened
// against its method name directly (see Dial) and framed with this codec,
// registered under its own content-subtype so it never shadows the
// default proto codec used elsewhere in the process.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

const codecName = "json"
