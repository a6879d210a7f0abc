// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

// CanisterStatus is the management view of an asset canister.
type CanisterStatus struct {
	Status      string   `cbor:"status"`
	MemorySize  uint64   `cbor:"memory_size"`
	Cycles      uint64   `cbor:"cycles"`
	ModuleHash  []byte   `cbor:"module_hash,omitempty"`
	Controllers []string `cbor:"controllers,omitempty"`
	AssetCount  uint64   `cbor:"asset_count"`
}
