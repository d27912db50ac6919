// Package replika keeps an authoritative set of application-owned game
// objects coherent across connected peers. It does not allocate, own or
// free the objects; it tracks them, decides when to call the
// application's serialization hooks, and routes the resulting wire
// messages through the attached transport.
//
// The engine mediates four events per object: construction, destruction,
// scope change and serialization. Commands are queued per participant and
// drained in dependency order on every Tick, so the application may issue
// them out of order (a SetScope before the object has a network
// identifier, say) and still get a correct wire stream.
package replika

import (
	"time"

	"github.com/rollforge/replika/protocol"
)

// NetworkID names a replica across peers. The application assigns it; the
// engine never generates identifiers. Zero means not assigned yet, and
// commands against such a replica stay queued until the identifier shows
// up.
type NetworkID uint64

const UnassignedID NetworkID = 0

// Handle is the engine's stable name for a registered replica. Command
// lists and mirrors store handles and resolve them through the registry,
// so a dereferenced replica disappears from every queue at once.
type Handle uint64

// Result is what replica hooks and engine callbacks return.
type Result byte

const (
	// ProcessingDone: the hook handled the event normally.
	ProcessingDone Result = iota
	// CancelProcess: drop this command, no wire effect.
	CancelProcess
	// BroadcastIdentically: the written bytes are the same for every
	// participant; the engine may reuse them.
	BroadcastIdentically
	// StopProcessing aborts the rest of this participant's tick.
	StopProcessing
)

// ConstructVerdict is returned by the construction-resolution callback.
type ConstructVerdict byte

const (
	// ConstructOk: the application created the object and assigned its
	// network identifier.
	ConstructOk ConstructVerdict = iota
	// ConstructDefer: try again next tick; the command is requeued at the
	// head and the rest of this participant's receive queue waits.
	ConstructDefer
	// ConstructCancel drops the command.
	ConstructCancel
	// ConstructFatal drops the command and removes the participant.
	ConstructFatal
)

// Perm gates the replica hooks. The mask is per-object and uniform
// across participants; all bits are set for a freshly referenced replica.
type Perm uint8

const (
	PermSendConstruction Perm = 1 << iota
	PermReceiveConstruction
	PermSendScopeChange
	PermReceiveScopeChange
	PermSerialize

	PermNone Perm = 0
	PermAll  Perm = PermSendConstruction | PermReceiveConstruction |
		PermSendScopeChange | PermReceiveScopeChange | PermSerialize
)

// Replica is the per-object capability the application implements.
//
// Send hooks write the message payload to out; a construction or
// scope-change hook that writes nothing cancels the command (and, for
// construction, every dependent command on that participant). A serialize
// hook that writes nothing sends nothing this tick and leaves the
// serialize signal pending; a destruction goes out even with an empty
// payload. Receive hooks consume the payload; the stream buffer is
// engine-owned and aliases the received record, so hooks must copy out
// anything they keep.
//
// Replica values are used as map keys; implement the interface on a
// pointer type.
type Replica interface {
	// NetworkID returns the application-assigned identifier, or
	// UnassignedID while there is none yet.
	NetworkID() NetworkID

	SendConstruction(now time.Time, to string, out *protocol.Stream) Result
	SendDestruction(to string, out *protocol.Stream) Result
	SendScopeChange(inScope bool, to string, out *protocol.Stream) Result
	SendSerialize(now time.Time, to string, out *protocol.Stream) Result

	ReceiveDestruction(from string, in *protocol.Stream) Result
	ReceiveScopeChange(from string, inScope bool, in *protocol.Stream) Result
	// ReceiveSerialize returning ProcessingDone stamps the replica's
	// last-deserialize time.
	ReceiveSerialize(from string, ts time.Time, in *protocol.Stream) Result
}

// Callbacks is the engine-level callback set, injected once per Manager.
// ReceiveConstruction is the construction-resolution callback: it fires
// when a construction arrives for an identifier the engine cannot
// resolve, and is expected to create the object, bind the identifier in
// the application's lookup, and return the object with ConstructOk; the
// engine references it. The download-complete pair is optional; embed
// BaseCallbacks to get no-op versions.
//
// Callbacks run inside the tick with the engine lock held, like replica
// hooks: they must not call back into mutating Manager operations.
type Callbacks interface {
	ReceiveConstruction(m *Manager, from string, id NetworkID, ts time.Time, in *protocol.Stream) (ConstructVerdict, Replica)
	SendDownloadComplete(m *Manager, to string, now time.Time, out *protocol.Stream) Result
	ReceiveDownloadComplete(m *Manager, from string, in *protocol.Stream) Result
}

// BaseCallbacks supplies no-op optional callbacks.
type BaseCallbacks struct{}

func (BaseCallbacks) SendDownloadComplete(*Manager, string, time.Time, *protocol.Stream) Result {
	return ProcessingDone
}

func (BaseCallbacks) ReceiveDownloadComplete(*Manager, string, *protocol.Stream) Result {
	return ProcessingDone
}
