// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"reflect"

	"github.com/dustin/go-humanize"
	"github.com/go-viper/mapstructure/v2"
)

// ByteSize is a size in bytes. In files and the environment it may be
// written with a unit: "512KiB", "2MB".
type ByteSize uint64

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Int returns b as an int for APIs sized in ints.
func (b ByteSize) Int() int {
	return int(b)
}

func byteSizeHook() mapstructure.DecodeHookFuncType {
	return func(from, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeFor[ByteSize]() || from.Kind() != reflect.String {
			return data, nil
		}
		n, err := humanize.ParseBytes(data.(string))
		if err != nil {
			return nil, err
		}
		return ByteSize(n), nil
	}
}
