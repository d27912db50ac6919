package replika

import (
	"time"

	"github.com/rollforge/replika/utils"
)

// command is the per-(replica, participant) pending action mask.
type command uint8

const (
	cmdExplicitConstruct command = 1 << iota
	cmdImplicitConstruct
	cmdScopeTrue
	cmdScopeFalse
	cmdSerialize

	cmdConstructAny = cmdExplicitConstruct | cmdImplicitConstruct
	cmdScopeAny     = cmdScopeTrue | cmdScopeFalse
)

// mergeCommand folds a new command into an existing mask: explicit
// construction dominates implicit, the two scope bits replace each other
// (last write wins), serialize ORs in.
func mergeCommand(old, add command) command {
	if add&cmdScopeTrue != 0 {
		old &^= cmdScopeFalse
	}
	if add&cmdScopeFalse != 0 {
		old &^= cmdScopeTrue
	}
	merged := old | add
	if merged&cmdExplicitConstruct != 0 {
		merged &^= cmdImplicitConstruct
	}
	return merged
}

// remoteObject mirrors what the remote peer is known to have constructed.
// An entry exists exactly between the emission (or receipt) of a
// construction and the emission (or receipt) of a destruction.
type remoteObject struct {
	inScope  bool
	lastSend time.Time
}

// receivedCommand is a decoded incoming message awaiting dispatch.
// Payload interpretation is deferred to the tick so the application can
// assign identifiers or create objects between arrival and dispatch.
type receivedCommand struct {
	from    string
	kind    byte
	id      NetworkID
	aux     uint32 // reserved
	stamped bool
	ts      time.Time
	inScope bool
	seq     uint32
	hasSeq  bool
	payload []byte
}

// participant is one remote peer opted into replication traffic.
type participant struct {
	addr string

	// emit the download-complete message once the initial construction
	// batch has gone out
	callDownloadComplete bool

	commands  *utils.OMap[Handle, command]
	mirror    map[Handle]*remoteObject
	pending   []*receivedCommand
	serialOut map[Handle]uint32
	serialIn  map[NetworkID]uint32
}

func newParticipant(addr string) *participant {
	return &participant{
		addr:      addr,
		commands:  utils.NewOMap[Handle, command](),
		mirror:    make(map[Handle]*remoteObject),
		serialOut: make(map[Handle]uint32),
		serialIn:  make(map[NetworkID]uint32),
	}
}

// enqueue merges a command onto the replica's entry, keeping the
// one-entry-per-replica invariant.
func (p *participant) enqueue(h Handle, add command) {
	old, _ := p.commands.Get(h)
	p.commands.Set(h, mergeCommand(old, add))
}

// purge removes every trace of the handle, with no wire effect.
func (p *participant) purge(h Handle) {
	p.commands.Delete(h)
	delete(p.mirror, h)
	delete(p.serialOut, h)
}

// hasConstructPending reports whether any command entry still carries a
// construction bit; the download-complete message waits for those.
func (p *participant) hasConstructPending() (pending bool) {
	p.commands.Range(func(_ Handle, mask command) bool {
		if mask&cmdConstructAny != 0 {
			pending = true
			return false
		}
		return true
	})
	return
}
