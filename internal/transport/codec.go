package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName deliberately collides with grpc-go's built-in "proto" codec
// name. grpc-go registers its proto codec from an init() in the
// google.golang.org/grpc package, which runs before this package's
// init() since grpc is imported by this package. Registering under the
// same name here overrides it, so ordinary grpc.Dial/grpc.NewServer
// calls transparently use JSON instead of requiring callers to pass
// grpc.CallContentSubtype everywhere.
const codecName = "proto"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	env, ok := v.(*Envelope)
	if !ok {
		return nil, fmt.Errorf("transport: codec cannot marshal %T", v)
	}
	return json.Marshal(env)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	env, ok := v.(*Envelope)
	if !ok {
		return fmt.Errorf("transport: codec cannot unmarshal into %T", v)
	}
	return json.Unmarshal(data, env)
}
