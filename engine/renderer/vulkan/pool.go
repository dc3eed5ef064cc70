package vulkan

import (
	"fmt"
	"sync"
)

type LockGroup string

// Vulkan objects that must be externally synchronized.
const (
	CommandPoolManagement LockGroup = "command_pool_management"
	DescriptorManagement  LockGroup = "descriptor_management"
	MemoryManagement      LockGroup = "memory_management"
	PipelineManagement    LockGroup = "pipeline_management"
)

// Mutex pool
type VulkanLockPool struct {
	locks map[LockGroup]*sync.Mutex
	mu    sync.Mutex // Protects access to the maps

	queueMutexes map[uint32]*sync.Mutex // Queue family index as key
}

func NewVulkanLockPool() *VulkanLockPool {
	return &VulkanLockPool{
		locks:        make(map[LockGroup]*sync.Mutex),
		queueMutexes: make(map[uint32]*sync.Mutex),
	}
}

// Get or create the mutex for a group.
func (vs *VulkanLockPool) lock(group LockGroup) *sync.Mutex {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.locks[group]; !exists {
		vs.locks[group] = &sync.Mutex{}
	}
	return vs.locks[group]
}

func (vs *VulkanLockPool) SafeCall(group LockGroup, fn func() error) error {
	l := vs.lock(group)
	l.Lock()
	defer l.Unlock()

	return fn()
}

// SetQueueFamily registers a queue family. Families that share an index share a mutex.
func (vs *VulkanLockPool) SetQueueFamily(index uint32) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if _, exists := vs.queueMutexes[index]; !exists {
		vs.queueMutexes[index] = &sync.Mutex{}
	}
}

func (vs *VulkanLockPool) SafeQueueCall(queueFamilyIndex uint32, fn func() error) error {
	vs.mu.Lock()
	l, ok := vs.queueMutexes[queueFamilyIndex]
	vs.mu.Unlock()
	if !ok {
		return fmt.Errorf("queue family %d was never registered", queueFamilyIndex)
	}

	l.Lock()
	defer l.Unlock()

	return fn()
}
