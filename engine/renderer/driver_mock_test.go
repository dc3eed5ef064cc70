package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

var errInjected = errors.New("injected failure")

type mockEvent struct {
	Kind   string
	Handle uint64
}

type mockBuffer struct {
	size   uint64
	usage  metadata.BufferUsageFlags
	memory metadata.MemoryHandle
}

type mockSubmission struct {
	cb    metadata.CommandBufferHandle
	fence metadata.FenceHandle
}

type mockCopy struct {
	src, dst metadata.BufferHandle
	size     uint64
}

// mockDriver simulates a single in-order GPU queue. With deferred set, submitted
// work only completes when a fence wait or an idle wait forces it.
type mockDriver struct {
	types     []metadata.MemoryType
	typeBits  uint32
	alignment uint64
	images    uint32
	extent    metadata.Extent2D
	deferred  bool
	// hang makes fence waits on pending work time out.
	hang bool
	// shortReqs reports the requested size unaligned as the memory requirement.
	shortReqs bool

	nextHandle uint64

	buffers   map[metadata.BufferHandle]*mockBuffer
	memory    map[metadata.MemoryHandle][]byte
	mapped    map[metadata.MemoryHandle]bool
	cbs       map[metadata.CommandBufferHandle][]mockCopy
	recording map[metadata.CommandBufferHandle]bool
	sems      map[metadata.SemaphoreHandle]bool
	fences    map[metadata.FenceHandle]bool
	sets      map[metadata.DescriptorSetHandle]metadata.BufferHandle

	pending     []mockSubmission
	maxInFlight int
	nextImage   uint32
	events      []mockEvent
	violations  []string

	memAllocs int
	memFrees  int
	acquires  int
	submits   int
	presents  int

	failAcquireAt     int
	failAllocCB       bool
	failAllocateAt    int
	failSubmitAt      int
	failQueueIdle     bool
	allocateCalls     int
	lastMemAllocSizes []uint64
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		types: []metadata.MemoryType{
			{PropertyFlags: metadata.MEMORY_PROPERTY_DEVICE_LOCAL},
			{PropertyFlags: metadata.MEMORY_PROPERTY_HOST_VISIBLE | metadata.MEMORY_PROPERTY_HOST_COHERENT},
			{PropertyFlags: metadata.MEMORY_PROPERTY_DEVICE_LOCAL | metadata.MEMORY_PROPERTY_HOST_VISIBLE | metadata.MEMORY_PROPERTY_HOST_COHERENT},
		},
		typeBits:  0b111,
		alignment: 256,
		images:    3,
		extent:    metadata.Extent2D{Width: 800, Height: 600},
		buffers:   map[metadata.BufferHandle]*mockBuffer{},
		memory:    map[metadata.MemoryHandle][]byte{},
		mapped:    map[metadata.MemoryHandle]bool{},
		cbs:       map[metadata.CommandBufferHandle][]mockCopy{},
		recording: map[metadata.CommandBufferHandle]bool{},
		sems:      map[metadata.SemaphoreHandle]bool{},
		fences:    map[metadata.FenceHandle]bool{},
		sets:      map[metadata.DescriptorSetHandle]metadata.BufferHandle{},
	}
}

func (m *mockDriver) handle() uint64 {
	m.nextHandle++
	return m.nextHandle
}

func (m *mockDriver) log(kind string, h uint64) {
	m.events = append(m.events, mockEvent{Kind: kind, Handle: h})
}

func (m *mockDriver) violate(format string, args ...interface{}) {
	m.violations = append(m.violations, fmt.Sprintf(format, args...))
}

// live counts every object that still needs an explicit destroy.
func (m *mockDriver) live() int {
	return len(m.buffers) + len(m.memory) + len(m.cbs) + len(m.sems) + len(m.fences)
}

func (m *mockDriver) isPending(cb metadata.CommandBufferHandle) bool {
	for _, p := range m.pending {
		if p.cb == cb {
			return true
		}
	}
	return false
}

func (m *mockDriver) fencePending(f metadata.FenceHandle) bool {
	for _, p := range m.pending {
		if p.fence == f {
			return true
		}
	}
	return false
}

// complete executes pending submissions in order, up to and including index i.
func (m *mockDriver) complete(i int) {
	for _, p := range m.pending[:i+1] {
		for _, c := range m.cbs[p.cb] {
			src := m.memory[m.buffers[c.src].memory]
			dst := m.memory[m.buffers[c.dst].memory]
			copy(dst[:c.size], src[:c.size])
		}
		if p.fence != metadata.NullHandle {
			m.fences[p.fence] = true
		}
	}
	m.pending = append([]mockSubmission(nil), m.pending[i+1:]...)
}

func (m *mockDriver) completeAll() {
	if len(m.pending) > 0 {
		m.complete(len(m.pending) - 1)
	}
}

func (m *mockDriver) MemoryTypes() []metadata.MemoryType {
	return m.types
}

func (m *mockDriver) CreateBuffer(size uint64, usage metadata.BufferUsageFlags) (metadata.BufferHandle, metadata.MemoryRequirements, error) {
	h := metadata.BufferHandle(m.handle())
	m.buffers[h] = &mockBuffer{size: size, usage: usage}
	reqs := metadata.MemoryRequirements{
		Size:           core.AlignUp(size, m.alignment),
		Alignment:      m.alignment,
		MemoryTypeBits: m.typeBits,
	}
	if m.shortReqs {
		reqs.Size = size
	}
	return h, reqs, nil
}

func (m *mockDriver) DestroyBuffer(buffer metadata.BufferHandle) {
	if _, ok := m.buffers[buffer]; !ok {
		m.violate("destroy of unknown buffer %d", buffer)
	}
	delete(m.buffers, buffer)
}

func (m *mockDriver) AllocateMemory(size uint64, memoryTypeIndex uint32) (metadata.MemoryHandle, error) {
	m.allocateCalls++
	if m.failAllocateAt > 0 && m.allocateCalls == m.failAllocateAt {
		return metadata.NullHandle, errInjected
	}
	h := metadata.MemoryHandle(m.handle())
	m.memory[h] = make([]byte, size)
	m.memAllocs++
	m.lastMemAllocSizes = append(m.lastMemAllocSizes, size)
	m.log("alloc_memory", uint64(h))
	return h, nil
}

func (m *mockDriver) FreeMemory(memory metadata.MemoryHandle) {
	if _, ok := m.memory[memory]; !ok {
		m.violate("double free of memory %d", memory)
		return
	}
	if m.mapped[memory] {
		m.violate("free of mapped memory %d", memory)
	}
	delete(m.memory, memory)
	m.memFrees++
	m.log("free_memory", uint64(memory))
}

func (m *mockDriver) BindBufferMemory(buffer metadata.BufferHandle, memory metadata.MemoryHandle) error {
	b, ok := m.buffers[buffer]
	if !ok {
		return errors.New("unknown buffer")
	}
	b.memory = memory
	return nil
}

func (m *mockDriver) MapMemory(memory metadata.MemoryHandle, size uint64) ([]byte, error) {
	mem, ok := m.memory[memory]
	if !ok {
		return nil, errors.New("unknown memory")
	}
	m.mapped[memory] = true
	return mem[:size], nil
}

func (m *mockDriver) UnmapMemory(memory metadata.MemoryHandle) {
	delete(m.mapped, memory)
}

func (m *mockDriver) AllocateCommandBuffer() (metadata.CommandBufferHandle, error) {
	if m.failAllocCB {
		return metadata.NullHandle, errInjected
	}
	h := metadata.CommandBufferHandle(m.handle())
	m.cbs[h] = nil
	return h, nil
}

func (m *mockDriver) FreeCommandBuffer(cb metadata.CommandBufferHandle) {
	if m.isPending(cb) {
		m.violate("free of pending command buffer %d", cb)
	}
	delete(m.cbs, cb)
}

func (m *mockDriver) ResetCommandBuffer(cb metadata.CommandBufferHandle) error {
	if m.isPending(cb) {
		m.violate("reset of pending command buffer %d", cb)
	}
	m.cbs[cb] = nil
	return nil
}

func (m *mockDriver) BeginCommandBuffer(cb metadata.CommandBufferHandle, oneTimeSubmit bool) error {
	if m.isPending(cb) {
		m.violate("record into pending command buffer %d", cb)
	}
	m.recording[cb] = true
	m.log("record", uint64(cb))
	return nil
}

func (m *mockDriver) EndCommandBuffer(cb metadata.CommandBufferHandle) error {
	if !m.recording[cb] {
		return errors.New("command buffer not recording")
	}
	delete(m.recording, cb)
	return nil
}

func (m *mockDriver) CmdCopyBuffer(cb metadata.CommandBufferHandle, src, dst metadata.BufferHandle, size uint64) {
	if !m.buffers[src].usage.Has(metadata.BUFFER_USAGE_TRANSFER_SRC) {
		m.violate("copy from buffer %d without transfer src usage", src)
	}
	if !m.buffers[dst].usage.Has(metadata.BUFFER_USAGE_TRANSFER_DST) {
		m.violate("copy into buffer %d without transfer dst usage", dst)
	}
	m.cbs[cb] = append(m.cbs[cb], mockCopy{src: src, dst: dst, size: size})
}

func (m *mockDriver) CmdBeginRenderPass(cb metadata.CommandBufferHandle, imageIndex uint32, clearColor [4]float32) {
}
func (m *mockDriver) CmdEndRenderPass(cb metadata.CommandBufferHandle) {}
func (m *mockDriver) CmdBindPipeline(cb metadata.CommandBufferHandle) {}
func (m *mockDriver) CmdSetViewport(cb metadata.CommandBufferHandle, extent metadata.Extent2D) {
}
func (m *mockDriver) CmdSetScissor(cb metadata.CommandBufferHandle, extent metadata.Extent2D) {}
func (m *mockDriver) CmdBindVertexBuffer(cb metadata.CommandBufferHandle, buffer metadata.BufferHandle) {
	if !m.buffers[buffer].usage.Has(metadata.BUFFER_USAGE_VERTEX_BUFFER) {
		m.violate("bind of buffer %d without vertex usage", buffer)
	}
}
func (m *mockDriver) CmdBindIndexBuffer(cb metadata.CommandBufferHandle, buffer metadata.BufferHandle, indexType metadata.IndexType) {
	if !m.buffers[buffer].usage.Has(metadata.BUFFER_USAGE_INDEX_BUFFER) {
		m.violate("bind of buffer %d without index usage", buffer)
	}
}
func (m *mockDriver) CmdBindDescriptorSet(cb metadata.CommandBufferHandle, set metadata.DescriptorSetHandle) {
	if _, ok := m.sets[set]; !ok {
		m.violate("bind of unknown descriptor set %d", set)
	}
}
func (m *mockDriver) CmdDrawIndexed(cb metadata.CommandBufferHandle, indexCount uint32) {
	m.log("draw", uint64(indexCount))
}

func (m *mockDriver) CreateSemaphore() (metadata.SemaphoreHandle, error) {
	h := metadata.SemaphoreHandle(m.handle())
	m.sems[h] = true
	return h, nil
}

func (m *mockDriver) DestroySemaphore(semaphore metadata.SemaphoreHandle) {
	delete(m.sems, semaphore)
}

func (m *mockDriver) CreateFence(signaled bool) (metadata.FenceHandle, error) {
	h := metadata.FenceHandle(m.handle())
	m.fences[h] = signaled
	return h, nil
}

func (m *mockDriver) DestroyFence(fence metadata.FenceHandle) {
	if m.fencePending(fence) {
		m.violate("destroy of fence %d still in use", fence)
	}
	delete(m.fences, fence)
}

func (m *mockDriver) WaitForFence(fence metadata.FenceHandle, timeout time.Duration) error {
	m.log("wait", uint64(fence))
	signaled, ok := m.fences[fence]
	if !ok {
		return errors.New("unknown fence")
	}
	if signaled {
		return nil
	}
	for i, p := range m.pending {
		if p.fence == fence {
			if m.hang {
				return core.ErrFenceTimeout
			}
			m.complete(i)
			return nil
		}
	}
	return core.ErrFenceTimeout
}

func (m *mockDriver) ResetFence(fence metadata.FenceHandle) error {
	if m.fencePending(fence) {
		m.violate("reset of fence %d still in use", fence)
	}
	m.fences[fence] = false
	m.log("reset", uint64(fence))
	return nil
}

func (m *mockDriver) QueueSubmit(info metadata.SubmitInfo) error {
	m.submits++
	if m.failSubmitAt > 0 && m.submits == m.failSubmitAt {
		return errInjected
	}
	if m.recording[info.CommandBuffer] {
		m.violate("submit of command buffer %d still recording", info.CommandBuffer)
	}
	m.log("submit", uint64(info.Fence))
	m.pending = append(m.pending, mockSubmission{cb: info.CommandBuffer, fence: info.Fence})
	if len(m.pending) > m.maxInFlight {
		m.maxInFlight = len(m.pending)
	}
	if !m.deferred {
		m.completeAll()
	}
	return nil
}

func (m *mockDriver) QueueWaitIdle() error {
	if m.failQueueIdle {
		return errInjected
	}
	m.completeAll()
	m.log("queue_idle", 0)
	return nil
}

func (m *mockDriver) AcquireNextImage(signal metadata.SemaphoreHandle) (uint32, error) {
	m.acquires++
	if m.failAcquireAt > 0 && m.acquires == m.failAcquireAt {
		return 0, errInjected
	}
	idx := m.nextImage
	m.nextImage = (m.nextImage + 1) % m.images
	m.log("acquire", uint64(idx))
	return idx, nil
}

func (m *mockDriver) QueuePresent(wait metadata.SemaphoreHandle, imageIndex uint32) error {
	m.presents++
	m.log("present", uint64(imageIndex))
	return nil
}

func (m *mockDriver) DeviceWaitIdle() error {
	m.completeAll()
	m.log("device_idle", 0)
	return nil
}

func (m *mockDriver) Extent() metadata.Extent2D {
	return m.extent
}

func (m *mockDriver) ImageCount() uint32 {
	return m.images
}

func (m *mockDriver) AllocateDescriptorSet(uniform metadata.BufferHandle, size uint64) (metadata.DescriptorSetHandle, error) {
	if !m.buffers[uniform].usage.Has(metadata.BUFFER_USAGE_UNIFORM_BUFFER) {
		m.violate("descriptor set for buffer %d without uniform usage", uniform)
	}
	h := metadata.DescriptorSetHandle(m.handle())
	m.sets[h] = uniform
	return h, nil
}
