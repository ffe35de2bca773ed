package fls_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-fiberloop/fls"
)

func TestAllocSlot_OffsetsAlignedAndMonotonic(t *testing.T) {
	type small struct {
		b byte
	}

	sByte := fls.AllocSlot[byte](0x11)
	sInt64 := fls.AllocSlot[int64](0)
	sSmall := fls.AllocSlot[small](small{})
	_ = sByte
	_ = sInt64
	_ = sSmall

	a := fls.NewArea()
	fls.SwitchTo(a)
	defer fls.SwitchToNone()

	require.Equal(t, byte(0x11), *fls.Get(sByte))

	pByte := uintptr(unsafe.Pointer(fls.Get(sByte)))
	pInt64 := uintptr(unsafe.Pointer(fls.Get(sInt64)))
	pSmall := uintptr(unsafe.Pointer(fls.Get(sSmall)))
	require.Less(t, pByte, pInt64, "offsets must increase in registration order")
	require.Less(t, pInt64, pSmall, "offsets must increase in registration order")
	require.Zero(t, pInt64%unsafe.Alignof(int64(0)), "int64 slot must be aligned for int64")
}

func TestResetRestoresInitialValue(t *testing.T) {
	slot := fls.AllocSlot[int](42)

	a := fls.NewArea()
	fls.SwitchTo(a)
	defer fls.SwitchToNone()

	require.Equal(t, 42, *fls.Get(slot))

	*fls.Get(slot) = 100
	require.Equal(t, 100, *fls.Get(slot))

	fls.Reset(a)
	require.Equal(t, 42, *fls.Get(slot), "reset must restore the registered initial value")
}

func TestGetIn_CrossAreaAccessSharesLayout(t *testing.T) {
	slot := fls.AllocSlot[int](7)

	a1 := fls.NewArea()
	a2 := fls.NewArea()

	fls.SwitchTo(a1)
	*fls.Get(slot) = 23
	fls.SwitchToNone()

	// a2 was never switched-to, so it still holds its initial value.
	require.Equal(t, 7, *fls.GetIn(a2, slot))
	// a1's value is visible via GetIn without making it the active area.
	require.Equal(t, 23, *fls.GetIn(a1, slot))
}

func TestGetIn_NilAreaReturnsNil(t *testing.T) {
	slot := fls.AllocSlot[int](0)
	require.Nil(t, fls.GetIn(nil, slot))
}

func TestGet_PanicsWithNoActiveFiber(t *testing.T) {
	slot := fls.AllocSlot[int](0)
	fls.SwitchToNone()
	require.Panics(t, func() {
		fls.Get(slot)
	})
}

// TestAllocSlot_PanicsAfterFreeze must run last: Freeze is a process-wide,
// one-way latch (spec.md: slots are registered once, at startup, before any
// fiber runs), so once set it stays set for the remainder of this test
// binary.
func TestAllocSlot_PanicsAfterFreeze(t *testing.T) {
	fls.Freeze()
	require.Panics(t, func() {
		fls.AllocSlot[int](0)
	})
}
