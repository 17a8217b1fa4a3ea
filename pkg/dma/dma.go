// First-fit memory allocator for DMA buffers
// https://github.com/usbarmory/netcore
//
// Copyright (c) NetCore Authors
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

var def *Region

// Init initializes the package-default Region, used by netbuf.BufferPool
// when a pool is configured without a dedicated base address ("drawn from a
// system allocator").
func Init(start uint32, size uint32) {
	def = NewRegion(start, size)
}

// Default returns the package-default Region, or nil if Init was never
// called.
func Default() *Region {
	return def
}
