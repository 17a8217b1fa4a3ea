// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package netbuf

import (
	"reflect"
	"sync/atomic"
)

// Free releases one reference to buf (§4.1). If the reference count was
// above 1, only the decrement happens. Otherwise the buffer's unlink
// callback (if any) fires, the data region and header are returned to their
// respective sub-pools, and the at-most-one ip_opt-chained auxiliary buffer
// is freed recursively.
//
// Free never returns an error: a pool-return failure is a discard-policy
// event, not a caller-visible one (§4.1 "Discard policy"), and is reflected
// only in the owning sub-pool's Lost counter.
func Free(buf *NetBuffer) {
	if buf == nil {
		return
	}

	if atomic.AddInt32(&buf.refCount, -1) > 0 {
		return
	}

	buf.mu.Lock()
	unlink := buf.unlink
	buf.unlink = unlinkEntry{}
	ipOpt := buf.IPOpt
	buf.IPOpt = nil
	pool := buf.pool
	dt := buf.dt
	addr := buf.addr
	data := buf.data
	buf.mu.Unlock()

	if unlink.fn != nil {
		unlink.fn(unlink.obj, buf)
	}

	if dt != nil {
		dt.put(&region{addr: addr, data: data}, true)
	}

	if pool != nil && pool.header != nil {
		pool.header.put(buf, true)
	}

	if ipOpt != nil {
		Free(ipOpt)
	}
}

// FreeList frees every buffer in the primary fragment chain starting at
// head, following next_buf_ptr. Elements whose reference count survives the
// call (a retained fragment shared with another chain) keep their list
// links rewritten so the chain excludes the freed entries; *errCtr is
// incremented once per buffer that is actually released, not once per
// buffer visited, mirroring the source's error counter semantics.
func FreeList(head *NetBuffer, errCtr *int32) {
	cur := head

	for cur != nil {
		next := cur.primary.next

		if cur.RefCount() > 1 {
			// Retained: leave it linked to its current neighbors and
			// move on without freeing.
			cur = next
			continue
		}

		prev := cur.primary.prev
		cur.unlinkPrimary()
		Free(cur)

		if errCtr != nil {
			atomic.AddInt32(errCtr, 1)
		}

		if prev != nil {
			prev.primary.next = next
		}
		if next != nil {
			next.primary.prev = prev
		}

		cur = next
	}
}

// FreeQueuePrimary walks the top-level queue of chain heads via
// next_prim_list_ptr and frees each chain with FreeList.
func FreeQueuePrimary(queueHead *NetBuffer, errCtr *int32) {
	cur := queueHead

	for cur != nil {
		next := cur.primaryQueue
		cur.primaryQueue = nil
		FreeList(cur, errCtr)
		cur = next
	}
}

// FreeQueueSecondary walks queueHead via next_sec_list_ptr, freeing each
// node whose installed unlink callback matches unlinkFn; the callback field
// is cleared before the node is freed, preventing Free from re-entering the
// unlink path for nodes this walk already owns.
func FreeQueueSecondary(queueHead *NetBuffer, unlinkFn func(obj any, buf *NetBuffer)) {
	cur := queueHead

	for cur != nil {
		next := cur.secondary.next

		cur.mu.Lock()
		matches := cur.unlink.fn != nil && sameFunc(cur.unlink.fn, unlinkFn)
		if matches {
			cur.unlink = unlinkEntry{}
		}
		cur.mu.Unlock()

		if matches {
			cur.unlinkSecondary()
			Free(cur)
		}

		cur = next
	}
}

// FreeDataAreaRx returns only a raw receive data region to its sub-pool,
// used by the driver when a descriptor's region has already been detached
// from its header for upper-layer processing and only the spare region
// remains to be released.
func (bp *BufferPool) FreeDataAreaRx(addr uint32, data []byte) {
	if bp.rxLarge == nil {
		return
	}
	bp.rxLarge.put(&region{addr: addr, data: data}, true)
}

// sameFunc compares two unlink callbacks by identity. Go forbids comparing
// func values directly except to nil, so reflect is used to recover pointer
// equality; this mirrors the source's raw function-pointer comparison.
func sameFunc(a, b func(obj any, buf *NetBuffer)) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
