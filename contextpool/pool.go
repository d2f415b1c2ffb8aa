// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package contextpool

import (
	"errors"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rendertree"
)

// ErrNoDevice indicates that no GPU device provider is available, so no
// GPU context can be handed out. CPU contexts are always available.
var ErrNoDevice = errors.New("contextpool: no GPU device provider registered")

// Context is a rendering context handed to effects through the owning
// render. GPU contexts wrap a shared device provider from the host
// application; the pool receives the device, it does not create one.
// CPU contexts carry no device and select the software path.
type Context struct {
	provider gpucontext.DeviceProvider
	gpu      bool
}

// IsGPU reports whether this context targets a GPU device.
func (c *Context) IsGPU() bool { return c.gpu }

// Device returns the shared GPU device, or nil for CPU contexts.
func (c *Context) Device() gpucontext.Device {
	if c.provider == nil {
		return nil
	}
	return c.provider.Device()
}

// Queue returns the shared GPU queue, or nil for CPU contexts.
func (c *Context) Queue() gpucontext.Queue {
	if c.provider == nil {
		return nil
	}
	return c.provider.Queue()
}

// SurfaceFormat returns the texture format of the host surface, or
// TextureFormatUndefined for CPU contexts.
func (c *Context) SurfaceFormat() gputypes.TextureFormat {
	if c.provider == nil {
		return gputypes.TextureFormatUndefined
	}
	return c.provider.SurfaceFormat()
}

var _ rendertree.RenderContext = (*Context)(nil)

// Pool hands out rendering contexts backed by one shared device
// provider. It remembers the most recently handed out GPU and CPU
// contexts so paint sessions can keep reusing the same pair.
type Pool struct {
	mu       sync.Mutex
	provider gpucontext.DeviceProvider
	lastGPU  *Context
	lastCPU  *Context
}

// New creates a pool over the given device provider. provider may be
// nil, in which case GPU acquisition fails with ErrNoDevice and only CPU
// contexts are available.
func New(provider gpucontext.DeviceProvider) *Pool {
	return &Pool{provider: provider}
}

// GPUContext returns a GPU rendering context. With retrieveLast, the
// most recently handed out GPU context is returned if any, preserving
// texture continuity across repeated paint strokes.
func (p *Pool) GPUContext(retrieveLast bool) (rendertree.RenderContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if retrieveLast && p.lastGPU != nil {
		return p.lastGPU, nil
	}
	if p.provider == nil {
		return nil, ErrNoDevice
	}
	ctx := &Context{provider: p.provider, gpu: true}
	p.lastGPU = ctx
	return ctx, nil
}

// CPUContext returns a CPU (software) rendering context, with the same
// retrieveLast semantics as GPUContext.
func (p *Pool) CPUContext(retrieveLast bool) (rendertree.RenderContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if retrieveLast && p.lastCPU != nil {
		return p.lastCPU, nil
	}
	ctx := &Context{gpu: false}
	p.lastCPU = ctx
	return ctx, nil
}

var _ rendertree.ContextPool = (*Pool)(nil)
