// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package netbuf

import "errors"

// Pool configuration errors, surfaced at PoolInit time only. An interface
// whose pools fail to initialize never enters operational state.
var (
	ErrInvalidBlockSize  = errors.New("netbuf: block size smaller than minimum frame size for interface type")
	ErrSmallExceedsLarge = errors.New("netbuf: tx small block size exceeds tx large block size")
	ErrInvalidCount      = errors.New("netbuf: receive count must be >= 1 and total transmit count must be >= 1")
	ErrAlreadyConfigured = errors.New("netbuf: pool already configured for this interface")
	ErrInvalidPoolType   = errors.New("netbuf: invalid buffer pool type")
)

// Get/GetDataPtr errors are resource-exhaustion errors: non-fatal, the
// caller is expected to retry.
var (
	// ErrNoneAvail is returned when the selected pool's free list is
	// empty. It is distinct from ErrInvalidSize: an empty pool is not
	// the same failure as a pool that could never have fit the request.
	ErrNoneAvail = errors.New("netbuf: no buffer available")

	// ErrInvalidSize is returned when no configured pool's block size
	// can satisfy requested_size + start_index.
	ErrInvalidSize = errors.New("netbuf: requested size exceeds all configured pool block sizes")

	// ErrPoolNotConfigured is returned when Get/GetDataPtr is called
	// against an interface number with no matching pool.
	ErrPoolNotConfigured = errors.New("netbuf: pool not configured for this interface/type")
)
