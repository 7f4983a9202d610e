// Package codec is the binary document encoding used by the persistence
// layer. Documents are CBOR with deterministic (Core Deterministic
// Encoding) output so identical documents always produce identical bytes.
//
// Struct fields use their json tags, so the same types serve the HTTP
// API and storage. Times are encoded as RFC 3339 strings with nanosecond
// precision. Untyped maps decode as map[string]any so partial updates can
// be merged into a stored document without knowing its Go type.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Merge decodes doc as a map, overlays the top-level keys of partial and
// re-encodes the result. A nil doc is treated as an empty document.
func Merge(doc []byte, partial map[string]any) ([]byte, error) {
	fields := map[string]any{}
	if len(doc) > 0 {
		if err := decMode.Unmarshal(doc, &fields); err != nil {
			return nil, err
		}
	}
	for k, v := range partial {
		fields[k] = v
	}
	return encMode.Marshal(fields)
}

// Diagnose returns the extended diagnostic notation of data, for logs.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(data)
}
