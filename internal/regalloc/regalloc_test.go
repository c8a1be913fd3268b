package regalloc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoReg() Registers {
	return Registers{Int: []int{0, 1}, Float: []int{8, 9}}
}

func TestPushPopReusesRegisterWithoutSpill(t *testing.T) {
	r := New(twoReg())

	reg1, cmds, err := r.Push(KindInt)
	require.NoError(t, err)
	require.Empty(t, cmds)
	require.Equal(t, 0, reg1)

	reg2, cmds, err := r.Push(KindInt)
	require.NoError(t, err)
	require.Empty(t, cmds)
	require.Equal(t, 1, reg2)

	frame, cmds := r.Pop(KindInt)
	require.Empty(t, cmds)
	require.False(t, frame.Spilled)
	require.Equal(t, reg2, frame.Reg)

	frame, cmds = r.Pop(KindInt)
	require.Empty(t, cmds)
	require.Equal(t, reg1, frame.Reg)
}

func TestPushSpillsWhenClassExhausted(t *testing.T) {
	r := New(twoReg())

	_, _, err := r.Push(KindInt)
	require.NoError(t, err)
	_, _, err = r.Push(KindInt)
	require.NoError(t, err)

	// A third Int push has no free register: must spill the oldest.
	reg3, cmds, err := r.Push(KindInt)
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	require.Equal(t, CmdSpill, cmds[0].Kind)
	require.Equal(t, 0, cmds[0].Reg) // the oldest (first-pushed) register
	require.Equal(t, 0, reg3)        // reused physical register

	require.Equal(t, 3, r.Depth(KindInt))
}

func TestPopReloadsASpilledFrame(t *testing.T) {
	r := New(twoReg())
	r.Push(KindInt)
	r.Push(KindInt)
	r.Push(KindInt) // spills the first Push's register

	// Popping in LIFO order: top two pops are unspilled pushes 2 and 3...
	f, cmds := r.Pop(KindInt)
	require.Empty(t, cmds)
	_ = f
	f, cmds = r.Pop(KindInt)
	require.Empty(t, cmds)
	_ = f

	// ...the last Pop reaches the spilled original push and must reload it.
	f, cmds = r.Pop(KindInt)
	require.Len(t, cmds, 1)
	require.Equal(t, CmdReload, cmds[0].Kind)
	require.Equal(t, f.Reg, cmds[0].Reg)
}

func TestFlushSpillsAllLiveRegistersAndPreservesDepth(t *testing.T) {
	r := New(twoReg())
	r.Push(KindInt)
	r.Push(KindInt)
	r.Push(KindFloat)

	cmds := r.Flush()
	require.Len(t, cmds, 3)
	for _, c := range cmds {
		require.Equal(t, CmdSpill, c.Kind)
	}
	require.Equal(t, 2, r.Depth(KindInt))
	require.Equal(t, 1, r.Depth(KindFloat))

	// Flush is idempotent: nothing left live to spill a second time.
	require.Empty(t, r.Flush())

	// Popping after a flush must reload, since the value now lives in the
	// spill area rather than a register.
	_, cmds = r.Pop(KindFloat)
	require.Len(t, cmds, 1)
	require.Equal(t, CmdReload, cmds[0].Kind)
}

func TestPushExistingTracksAnAlreadyComputedRegister(t *testing.T) {
	r := New(twoReg())
	reg, _, err := r.Push(KindInt)
	require.NoError(t, err)

	// reg is free again once popped...
	_, _ = r.Pop(KindInt)
	require.Equal(t, 0, r.Depth(KindInt))

	// ...so pushing it back as an existing register needs no spill.
	cmds := r.PushExisting(KindInt, reg)
	require.Empty(t, cmds)
	require.Equal(t, 1, r.Depth(KindInt))
}

func TestIntAndFloatClassesAreIndependent(t *testing.T) {
	r := New(twoReg())
	intReg, _, err := r.Push(KindInt)
	require.NoError(t, err)
	floatReg, _, err := r.Push(KindFloat)
	require.NoError(t, err)
	require.NotEqual(t, intReg, floatReg)
	require.Equal(t, 1, r.Depth(KindInt))
	require.Equal(t, 1, r.Depth(KindFloat))
}
