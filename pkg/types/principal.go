// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// MaxPrincipalLength is the maximum number of raw bytes in a principal.
const MaxPrincipalLength = 29

var ErrInvalidCanisterID = errors.New("invalid canister id")

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// CanisterID identifies an asset canister. The zero value is the
// management canister ("aaaaa-aa").
type CanisterID struct {
	raw string
}

// CanisterIDFromBytes wraps raw principal bytes.
func CanisterIDFromBytes(b []byte) (CanisterID, error) {
	if len(b) > MaxPrincipalLength {
		return CanisterID{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidCanisterID, len(b), MaxPrincipalLength)
	}
	return CanisterID{raw: string(b)}, nil
}

// ParseCanisterID parses the textual form: base32 of CRC32 || bytes,
// lowercase, grouped in fives with dashes.
func ParseCanisterID(s string) (CanisterID, error) {
	if s == "" {
		return CanisterID{}, fmt.Errorf("%w: empty", ErrInvalidCanisterID)
	}

	compact := strings.ToUpper(strings.ReplaceAll(s, "-", ""))
	decoded, err := principalEncoding.DecodeString(compact)
	if err != nil {
		return CanisterID{}, fmt.Errorf("%w: %q: %v", ErrInvalidCanisterID, s, err)
	}
	if len(decoded) < 4 {
		return CanisterID{}, fmt.Errorf("%w: %q too short", ErrInvalidCanisterID, s)
	}

	body := decoded[4:]
	if binary.BigEndian.Uint32(decoded[:4]) != crc32.ChecksumIEEE(body) {
		return CanisterID{}, fmt.Errorf("%w: %q checksum mismatch", ErrInvalidCanisterID, s)
	}

	id, err := CanisterIDFromBytes(body)
	if err != nil {
		return CanisterID{}, err
	}
	if id.String() != strings.ToLower(s) {
		return CanisterID{}, fmt.Errorf("%w: %q is not in canonical form", ErrInvalidCanisterID, s)
	}
	return id, nil
}

// MustParseCanisterID is ParseCanisterID for constants and tests.
func MustParseCanisterID(s string) CanisterID {
	id, err := ParseCanisterID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (c CanisterID) Bytes() []byte {
	return []byte(c.raw)
}

func (c CanisterID) String() string {
	buf := make([]byte, 4+len(c.raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE([]byte(c.raw)))
	copy(buf[4:], c.raw)

	enc := strings.ToLower(principalEncoding.EncodeToString(buf))

	var sb strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		sb.WriteString(enc[i:min(i+5, len(enc))])
	}
	return sb.String()
}

func (c CanisterID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CanisterID) UnmarshalText(text []byte) error {
	id, err := ParseCanisterID(string(text))
	if err != nil {
		return err
	}
	*c = id
	return nil
}
