package replika

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeCommandExplicitDominates(t *testing.T) {
	merged := mergeCommand(cmdImplicitConstruct, cmdExplicitConstruct)
	assert.Equal(t, cmdExplicitConstruct, merged)

	merged = mergeCommand(cmdExplicitConstruct, cmdImplicitConstruct)
	assert.Equal(t, cmdExplicitConstruct, merged)
}

func TestMergeCommandScopeLastWriteWins(t *testing.T) {
	merged := mergeCommand(cmdScopeTrue, cmdScopeFalse)
	assert.Equal(t, cmdScopeFalse, merged)

	merged = mergeCommand(merged, cmdScopeTrue)
	assert.Equal(t, cmdScopeTrue, merged)

	// the scope bits never coexist
	assert.NotEqual(t, cmdScopeAny, merged&cmdScopeAny)
}

func TestMergeCommandSerializeORs(t *testing.T) {
	merged := mergeCommand(cmdExplicitConstruct|cmdScopeTrue, cmdSerialize)
	assert.Equal(t, cmdExplicitConstruct|cmdScopeTrue|cmdSerialize, merged)

	merged = mergeCommand(merged, cmdSerialize)
	assert.Equal(t, cmdExplicitConstruct|cmdScopeTrue|cmdSerialize, merged)
}

func TestParticipantEnqueueMerges(t *testing.T) {
	p := newParticipant("p")
	p.enqueue(1, cmdImplicitConstruct)
	p.enqueue(1, cmdScopeTrue)
	p.enqueue(1, cmdExplicitConstruct)
	p.enqueue(2, cmdSerialize)

	assert.Equal(t, 2, p.commands.Len())
	mask, _ := p.commands.Get(1)
	assert.Equal(t, cmdExplicitConstruct|cmdScopeTrue, mask)
}

func TestParticipantPurge(t *testing.T) {
	p := newParticipant("p")
	p.enqueue(1, cmdSerialize)
	p.mirror[1] = &remoteObject{inScope: true}
	p.serialOut[1] = 4

	p.purge(1)
	assert.Equal(t, 0, p.commands.Len())
	assert.Nil(t, p.mirror[1])
	assert.Equal(t, uint32(0), p.serialOut[1])
}

func TestHasConstructPending(t *testing.T) {
	p := newParticipant("p")
	assert.False(t, p.hasConstructPending())

	p.enqueue(1, cmdSerialize)
	assert.False(t, p.hasConstructPending())

	p.enqueue(2, cmdImplicitConstruct)
	assert.True(t, p.hasConstructPending())
}
