// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package netbuf

import "testing"

func TestShiftAndTrimHeader(t *testing.T) {
	bp := newTestPool(t, 2, 0, 0, 1, 1536, 0, 0)

	b, err := bp.Get(Tx, 100, 14, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b.SetHead(14)
	b.SetDataLen(100)

	b.TrimHeader(14)
	if b.Head() != 28 || b.DataLen() != 86 {
		t.Fatalf("after TrimHeader(14): head=%d dataLen=%d, want 28,86", b.Head(), b.DataLen())
	}

	b.ShiftHeader(14)
	if b.Head() != 14 || b.DataLen() != 100 {
		t.Fatalf("after ShiftHeader(14): head=%d dataLen=%d, want 14,100", b.Head(), b.DataLen())
	}
}

func TestShiftHeaderPastStartPanics(t *testing.T) {
	bp := newTestPool(t, 1, 0, 0, 1, 256, 0, 0)
	b, _ := bp.Get(Tx, 100, 0, 0)

	defer func() {
		if recover() == nil {
			t.Fatal("ShiftHeader past start of region should panic")
		}
	}()
	b.ShiftHeader(1)
}

func TestFlagsHas(t *testing.T) {
	f := Used | RxBroadcast
	if !f.Has(Used) || !f.Has(RxBroadcast) {
		t.Fatal("Has should report set bits")
	}
	if f.Has(TxMulticast) {
		t.Fatal("Has should not report unset bits")
	}
}

// clearHeader must reset every field a handler could observe, since the
// next Get() to draw this same header must not leak state from a previous
// transaction.
func TestClearHeaderOnFree(t *testing.T) {
	bp := newTestPool(t, 1, 1, 256, 0, 0, 0, 0)

	b, err := bp.Get(Rx, 128, 0, RxBroadcast)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b.Protocol.IF = ProtocolIndex{Index: 1, Len: 2}
	b.IfNbr = 7

	Free(b)

	b2, err := bp.Get(Rx, 128, 0, 0)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if b2 != b {
		t.Fatal("single-header pool should hand back the same header")
	}
	if b2.IfNbr != 0 || b2.Protocol != (ProtocolIndices{}) || b2.Flags.Has(RxBroadcast) {
		t.Fatal("clearHeader did not reset previous transaction state")
	}
}

func TestPrimaryChainLinkAndUnlink(t *testing.T) {
	bp := newTestPool(t, 3, 3, 256, 0, 0, 0, 0)

	a, _ := bp.Get(Rx, 64, 0, 0)
	b, _ := bp.Get(Rx, 64, 0, 0)
	c, _ := bp.Get(Rx, 64, 0, 0)

	a.LinkPrimaryAfter(b)
	b.LinkPrimaryAfter(c)

	if a.NextPrimary() != b || b.NextPrimary() != c {
		t.Fatal("primary chain forward links incorrect")
	}
	if c.PrevPrimary() != b || b.PrevPrimary() != a {
		t.Fatal("primary chain backward links incorrect")
	}

	b.unlinkPrimary()
	if a.NextPrimary() != c {
		t.Fatal("unlinkPrimary should splice a's next pointer past b to c")
	}
	if c.PrevPrimary() != a {
		t.Fatal("unlinkPrimary should splice c's prev pointer past b to a")
	}
}

// FreeList must release every buffer with refcount<=1 and splice around
// any buffer a second owner is still retaining.
func TestFreeListSkipsRetainedBuffers(t *testing.T) {
	bp := newTestPool(t, 3, 3, 256, 0, 0, 0, 0)

	a, _ := bp.Get(Rx, 64, 0, 0)
	b, _ := bp.Get(Rx, 64, 0, 0)
	c, _ := bp.Get(Rx, 64, 0, 0)

	a.LinkPrimaryAfter(b)
	b.LinkPrimaryAfter(c)

	b.Acquire() // retained elsewhere; refcount now 2

	var errCtr int32
	FreeList(a, &errCtr)

	if errCtr != 2 {
		t.Fatalf("errCtr = %d, want 2 (a and c actually released)", errCtr)
	}
	if b.RefCount() != 2 {
		t.Fatalf("retained buffer's refcount = %d, want 2 (FreeList must not touch it)", b.RefCount())
	}
	if bp.RxLargeStats().Free() != 2 {
		t.Fatalf("RxLargeStats().Free() = %d, want 2 (a, c released; b retained)", bp.RxLargeStats().Free())
	}

	Free(b) // drops the extra reference only; b is still Used
	if bp.RxLargeStats().Free() != 2 {
		t.Fatal("b still holds its original reference and must not be released yet")
	}

	Free(b) // drops the original reference
	if bp.RxLargeStats().Free() != 3 {
		t.Fatal("releasing the retained buffer's last reference should return its block")
	}
}

func TestFreeQueuePrimaryWalksHeads(t *testing.T) {
	bp := newTestPool(t, 4, 4, 256, 0, 0, 0, 0)

	head1, _ := bp.Get(Rx, 64, 0, 0)
	head2, _ := bp.Get(Rx, 64, 0, 0)

	head1.LinkPrimaryQueue(head2)

	var errCtr int32
	FreeQueuePrimary(head1, &errCtr)

	if errCtr != 2 {
		t.Fatalf("errCtr = %d, want 2", errCtr)
	}
	if bp.RxLargeStats().Free() != 4 {
		t.Fatalf("RxLargeStats().Free() = %d, want 4", bp.RxLargeStats().Free())
	}
}

func TestFreeQueueSecondaryMatchesByCallbackIdentity(t *testing.T) {
	bp := newTestPool(t, 2, 2, 256, 0, 0, 0, 0)

	a, _ := bp.Get(Rx, 64, 0, 0)
	b, _ := bp.Get(Rx, 64, 0, 0)

	var unlinked []*NetBuffer
	fn := func(obj any, buf *NetBuffer) { unlinked = append(unlinked, buf) }
	other := func(obj any, buf *NetBuffer) {}

	a.SetUnlink(fn, nil)
	b.SetUnlink(other, nil)
	a.LinkSecondaryAfter(b)

	FreeQueueSecondary(a, fn)

	if len(unlinked) != 0 {
		t.Fatalf("FreeQueueSecondary clears a matching node's callback before freeing it, so fn must not run; got %v", unlinked)
	}
	if a.RefCount() != 0 || b.RefCount() != 1 {
		t.Fatalf("FreeQueueSecondary should only release buffers whose callback matches fn by identity: a.RefCount()=%d b.RefCount()=%d, want 0 and 1", a.RefCount(), b.RefCount())
	}
	if bp.RxLargeStats().Free() != 1 {
		t.Fatalf("RxLargeStats().Free() = %d, want 1 (only a released)", bp.RxLargeStats().Free())
	}
}

func TestDoubleAcquireRequiresThreeReleases(t *testing.T) {
	bp := newTestPool(t, 1, 1, 256, 0, 0, 0, 0)

	b, _ := bp.Get(Rx, 64, 0, 0)
	b.Acquire()
	b.Acquire()

	Free(b)
	Free(b)
	if bp.RxLargeStats().Free() != 0 {
		t.Fatal("buffer with 3 references must survive 2 releases")
	}

	Free(b)
	if bp.RxLargeStats().Free() != 1 {
		t.Fatal("third release should return the block")
	}
}
