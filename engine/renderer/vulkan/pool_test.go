package vulkan

import (
	"errors"
	"sync"
	"testing"
)

func TestSafeCallSerializes(t *testing.T) {
	pool := NewVulkanLockPool()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.SafeCall(MemoryManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
}

func TestSafeCallReturnsError(t *testing.T) {
	pool := NewVulkanLockPool()
	want := errors.New("boom")

	if err := pool.SafeCall(PipelineManagement, func() error { return want }); !errors.Is(err, want) {
		t.Errorf("SafeCall() = %v, want %v", err, want)
	}
	// the group must be unlocked again
	if err := pool.SafeCall(PipelineManagement, func() error { return nil }); err != nil {
		t.Errorf("second SafeCall() = %v", err)
	}
}

func TestSafeQueueCall(t *testing.T) {
	pool := NewVulkanLockPool()

	called := false
	if err := pool.SafeQueueCall(3, func() error { called = true; return nil }); err == nil {
		t.Errorf("SafeQueueCall on unregistered family succeeded")
	}
	if called {
		t.Errorf("fn ran for an unregistered family")
	}

	pool.SetQueueFamily(3)
	pool.SetQueueFamily(3)
	if err := pool.SafeQueueCall(3, func() error { called = true; return nil }); err != nil {
		t.Fatalf("SafeQueueCall() = %v", err)
	}
	if !called {
		t.Errorf("fn did not run")
	}
}
