package wire

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the gRPC content subtype of the codec.
const Name = "pollux"

// Envelope is implemented by the RPC request and response types.
type Envelope interface {
	marshal(b []byte) []byte
	unmarshal(b []byte) error
}

// Marshal encodes an envelope.
func Marshal(v Envelope) []byte {
	return v.marshal(nil)
}

// Unmarshal decodes data into an envelope, replacing its contents.
func Unmarshal(data []byte, v Envelope) error {
	return v.unmarshal(data)
}

// Codec adapts the envelopes to grpc/encoding.Codec.
type Codec struct{}

var _ encoding.Codec = Codec{}

// Marshal implements encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	env, ok := v.(Envelope)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	return Marshal(env), nil
}

// Unmarshal implements encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	env, ok := v.(Envelope)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return Unmarshal(data, env)
}

// Name implements encoding.Codec.
func (Codec) Name() string {
	return Name
}
