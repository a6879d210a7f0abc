// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package canister

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// ContentType of every call body.
const ContentType = "application/cbor"

// encMode uses Core Deterministic Encoding so identical calls produce
// identical bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("canister: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("canister: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Decode reads one CBOR value from r.
func Decode(r io.Reader, v any) error {
	return decMode.NewDecoder(r).Decode(v)
}
