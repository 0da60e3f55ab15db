// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package msghash holds the FiveM message-type hash allow-list used to
// gate traffic on the game server's main port. The hashes are taken
// verbatim from code/shared/net/PacketNames.h in the FiveM client/server
// source and are not derived or recomputed here.
package msghash

// The 28 known message-type hashes. Names match PacketNames.h.
const (
	ArrayUpdate      uint32 = 0x0976e783
	ConVars          uint32 = 0x6acbd583
	Confirm          uint32 = 0xba96192a
	End              uint32 = 0xca569e63
	EntityCreate     uint32 = 0x0f216a2a
	Frame            uint32 = 0x53fffa3f
	HeHost           uint32 = 0x86e9f87b
	IHost            uint32 = 0xb3ea30de
	IQuit            uint32 = 0x522cadd1
	NetEvent         uint32 = 0x7337fd7a
	NetGameEvent     uint32 = 0x100d66a8
	ObjectIds        uint32 = 0x48e39581
	PackedAcks       uint32 = 0x258dfdb4
	PackedClones     uint32 = 0x81e1c835
	PaymentRequest   uint32 = 0x073b065b
	RequestObjectIds uint32 = 0xb8e611cf
	ResStart         uint32 = 0xafe4cd4a
	ResStop          uint32 = 0x45e855d7
	Route            uint32 = 0xe938445b
	RpcNative        uint32 = 0x211cab17
	ServerCommand    uint32 = 0xb18d4fc4
	ServerEvent      uint32 = 0xfa776e18
	StateBag         uint32 = 0xde3d1a59
	TimeSync         uint32 = 0xe56e37ed
	TimeSyncReq      uint32 = 0x1c1303f8
	WorldGrid3       uint32 = 0x852c1561
	GameStateAck     uint32 = 0xa5d4e2bc
	GameStateNAck    uint32 = 0xd2f86a6e
)

var allowed = map[uint32]struct{}{
	ArrayUpdate: {}, ConVars: {}, Confirm: {}, End: {}, EntityCreate: {},
	Frame: {}, HeHost: {}, IHost: {}, IQuit: {}, NetEvent: {},
	NetGameEvent: {}, ObjectIds: {}, PackedAcks: {}, PackedClones: {},
	PaymentRequest: {}, RequestObjectIds: {}, ResStart: {}, ResStop: {},
	Route: {}, RpcNative: {}, ServerCommand: {}, ServerEvent: {},
	StateBag: {}, TimeSync: {}, TimeSyncReq: {}, WorldGrid3: {},
	GameStateAck: {}, GameStateNAck: {},
}

// IsValid reports whether hash belongs to the known FiveM message set.
func IsValid(hash uint32) bool {
	_, ok := allowed[hash]
	return ok
}

// Count is the size of the allow-list, exported for tests that assert
// the full set is wired.
const Count = 28
