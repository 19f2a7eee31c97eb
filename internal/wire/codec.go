// Package wire defines the CBOR-encoded messages exchanged on the host
// channel and the viewer channel, plus the codec that carries them.
package wire

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}

	// google.golang.org/grpc registers its own protobuf codec under "proto"
	// in that package's init(); the blank import above makes it a dependency
	// of this package, so its init runs first and this registration wins.
	encoding.RegisterCodec(Codec{})
}

var _ encoding.Codec = Codec{}

// Marshal encodes v using deterministic core CBOR encoding, matching the
// canonical form both host and browser implementations produce.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR-encoded data into v.
func Unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder returns a streaming CBOR encoder over w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a streaming CBOR decoder over r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// CodecName is registered with google.golang.org/grpc/encoding in place of
// the default protobuf codec - see Codec below.
const CodecName = "proto"

// Codec implements google.golang.org/grpc/encoding.Codec by delegating to
// CBOR. grpc-go resolves the wire codec purely by the string returned from
// Name(); registering under "proto" makes it the transport's default codec
// without requiring a protoc-generated marshaler for every message type,
// since host-channel messages are plain Go structs with cbor tags.
type Codec struct{}

func (Codec) Marshal(v interface{}) ([]byte, error) {
	return Marshal(v)
}

func (Codec) Unmarshal(data []byte, v interface{}) error {
	return Unmarshal(data, v)
}

func (Codec) Name() string {
	return CodecName
}
