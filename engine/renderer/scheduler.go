package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/fromscratch/engine/containers"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

type FrameState uint8

const (
	FRAME_STATE_WAIT_FENCE FrameState = iota
	FRAME_STATE_ACQUIRE_IMAGE
	FRAME_STATE_RECORD
	FRAME_STATE_SUBMIT
	FRAME_STATE_PRESENT
	FRAME_STATE_ADVANCE
	FRAME_STATE_DESTROYED
)

func (s FrameState) String() string {
	switch s {
	case FRAME_STATE_WAIT_FENCE:
		return "WAIT_FENCE"
	case FRAME_STATE_ACQUIRE_IMAGE:
		return "ACQUIRE_IMAGE"
	case FRAME_STATE_RECORD:
		return "RECORD"
	case FRAME_STATE_SUBMIT:
		return "SUBMIT"
	case FRAME_STATE_PRESENT:
		return "PRESENT"
	case FRAME_STATE_ADVANCE:
		return "ADVANCE"
	case FRAME_STATE_DESTROYED:
		return "DESTROYED"
	}
	return fmt.Sprintf("FrameState(%d)", uint8(s))
}

// Geometry is the device local mesh every frame draws.
type Geometry struct {
	Vertices   *Buffer
	Indices    *Buffer
	IndexCount uint32
	IndexType  metadata.IndexType
}

// Scheduler drives one frame through wait, acquire, record, submit and present
// while cycling over a fixed ring of frame slots.
type Scheduler struct {
	driver   Driver
	frames   []*FrameResources
	geometry *Geometry
	uniforms *UniformUpdater

	// imagesInFlight holds, per swapchain image, the fence of the slot that last rendered to it.
	imagesInFlight []metadata.FenceHandle
	// submitted holds the frame numbers the CPU still considers in flight.
	submitted *containers.RingQueue[uint64]

	fenceTimeout time.Duration
	clearColor   [4]float32
	transform    metadata.UniformBufferObject

	CurrentFrame int
	FrameNumber  uint64
	ImageIndex   uint32
	State        FrameState
}

type SchedulerConfig struct {
	FenceTimeout time.Duration
	ClearColor   [4]float32
}

func NewScheduler(driver Driver, frames []*FrameResources, geometry *Geometry, uniforms *UniformUpdater, config SchedulerConfig) *Scheduler {
	return &Scheduler{
		driver:         driver,
		frames:         frames,
		geometry:       geometry,
		uniforms:       uniforms,
		imagesInFlight: make([]metadata.FenceHandle, driver.ImageCount()),
		submitted:      containers.NewRingQueue[uint64](len(frames)),
		fenceTimeout:   config.FenceTimeout,
		clearColor:     config.ClearColor,
		transform:      metadata.IdentityTransform(),
		State:          FRAME_STATE_WAIT_FENCE,
	}
}

// SetTransform replaces the transform written into the next frame's uniform buffer.
func (s *Scheduler) SetTransform(ubo metadata.UniformBufferObject) {
	s.transform = ubo
}

func (s *Scheduler) MaxFramesInFlight() int {
	return len(s.frames)
}

// InFlight returns how many submitted frames have not been observed complete yet.
func (s *Scheduler) InFlight() int {
	return s.submitted.Len()
}

// DrawFrame runs one full iteration of the frame state machine. Any error is fatal
// for the frame loop; the scheduler is left in the state where it failed.
func (s *Scheduler) DrawFrame() error {
	if s.State == FRAME_STATE_DESTROYED {
		return core.ErrRendererDestroyed
	}
	frame := s.frames[s.CurrentFrame]

	s.State = FRAME_STATE_WAIT_FENCE
	// Wait for the execution of the previous use of this slot to complete.
	if err := s.driver.WaitForFence(frame.InFlight, s.fenceTimeout); err != nil {
		core.LogError("frame %d: in-flight fence wait failed on slot %d: %s", s.FrameNumber, s.CurrentFrame, err)
		return fmt.Errorf("wait for slot %d: %w", s.CurrentFrame, err)
	}
	s.retire()

	s.State = FRAME_STATE_ACQUIRE_IMAGE
	imageIndex, err := s.driver.AcquireNextImage(frame.ImageAvailable)
	if err != nil {
		core.LogError("frame %d: failed to acquire swapchain image: %s", s.FrameNumber, err)
		return fmt.Errorf("%w: acquire image: %w", core.ErrCommandSubmissionFailure, err)
	}
	if int(imageIndex) >= len(s.imagesInFlight) {
		return fmt.Errorf("%w: image index %d out of %d", core.ErrCommandSubmissionFailure, imageIndex, len(s.imagesInFlight))
	}
	s.ImageIndex = imageIndex

	// Make sure the previous frame is not using this image (i.e. its fence is being waited on)
	if f := s.imagesInFlight[imageIndex]; f != metadata.NullHandle && f != frame.InFlight {
		if err := s.driver.WaitForFence(f, s.fenceTimeout); err != nil {
			core.LogError("frame %d: wait for image %d failed: %s", s.FrameNumber, imageIndex, err)
			return fmt.Errorf("wait for image %d: %w", imageIndex, err)
		}
	}
	// Mark the image fence as in-use by this frame.
	s.imagesInFlight[imageIndex] = frame.InFlight

	// Only reset once work is guaranteed to be submitted with this fence.
	if err := s.driver.ResetFence(frame.InFlight); err != nil {
		return fmt.Errorf("%w: reset fence: %w", core.ErrCommandSubmissionFailure, err)
	}

	if frame.Uniform != nil {
		if err := s.uniforms.UpdateTransform(frame.Index, s.transform); err != nil {
			return err
		}
	}

	s.State = FRAME_STATE_RECORD
	if err := s.record(frame, imageIndex); err != nil {
		core.LogError("frame %d: failed to record slot %d: %s", s.FrameNumber, s.CurrentFrame, err)
		return err
	}

	s.State = FRAME_STATE_SUBMIT
	// Waits for the image at the color attachment output stage and signals render finished.
	if err := s.driver.QueueSubmit(metadata.SubmitInfo{
		CommandBuffer:   frame.CommandBuffer,
		WaitSemaphore:   frame.ImageAvailable,
		SignalSemaphore: frame.RenderFinished,
		Fence:           frame.InFlight,
	}); err != nil {
		core.LogError("frame %d: queue submit failed: %s", s.FrameNumber, err)
		return fmt.Errorf("%w: submit: %w", core.ErrCommandSubmissionFailure, err)
	}
	if err := s.submitted.Enqueue(s.FrameNumber); err != nil {
		return fmt.Errorf("%w: frame %d: %w", core.ErrResourceInUse, s.FrameNumber, err)
	}

	s.State = FRAME_STATE_PRESENT
	if err := s.driver.QueuePresent(frame.RenderFinished, imageIndex); err != nil {
		core.LogError("frame %d: present failed: %s", s.FrameNumber, err)
		return fmt.Errorf("%w: present: %w", core.ErrCommandSubmissionFailure, err)
	}

	s.State = FRAME_STATE_ADVANCE
	s.CurrentFrame = (s.CurrentFrame + 1) % len(s.frames)
	s.FrameNumber++
	return nil
}

func (s *Scheduler) record(frame *FrameResources, imageIndex uint32) error {
	cb := frame.CommandBuffer
	if err := s.driver.ResetCommandBuffer(cb); err != nil {
		return fmt.Errorf("%w: reset command buffer: %w", core.ErrCommandSubmissionFailure, err)
	}
	if err := s.driver.BeginCommandBuffer(cb, false); err != nil {
		return fmt.Errorf("%w: begin command buffer: %w", core.ErrCommandSubmissionFailure, err)
	}

	extent := s.driver.Extent()
	s.driver.CmdBeginRenderPass(cb, imageIndex, s.clearColor)
	s.driver.CmdBindPipeline(cb)
	s.driver.CmdSetViewport(cb, extent)
	s.driver.CmdSetScissor(cb, extent)
	s.driver.CmdBindVertexBuffer(cb, s.geometry.Vertices.Handle)
	s.driver.CmdBindIndexBuffer(cb, s.geometry.Indices.Handle, s.geometry.IndexType)
	if frame.DescriptorSet != metadata.NullHandle {
		s.driver.CmdBindDescriptorSet(cb, frame.DescriptorSet)
	}
	s.driver.CmdDrawIndexed(cb, s.geometry.IndexCount)
	s.driver.CmdEndRenderPass(cb)

	if err := s.driver.EndCommandBuffer(cb); err != nil {
		return fmt.Errorf("%w: end command buffer: %w", core.ErrCommandSubmissionFailure, err)
	}
	return nil
}

// retire drops every frame the fence wait just proved complete. The slot being
// reused last carried frame FrameNumber-N, so that frame and all older ones are done.
func (s *Scheduler) retire() {
	n := uint64(len(s.frames))
	if s.FrameNumber < n {
		return
	}
	done := s.FrameNumber - n
	for !s.submitted.IsEmpty() {
		oldest, _ := s.submitted.Peek()
		if oldest > done {
			break
		}
		_, _ = s.submitted.Dequeue()
	}
}

// markDestroyed forgets every in-flight image and stops further frames.
func (s *Scheduler) markDestroyed() {
	for i := range s.imagesInFlight {
		s.imagesInFlight[i] = metadata.NullHandle
	}
	for !s.submitted.IsEmpty() {
		_, _ = s.submitted.Dequeue()
	}
	s.State = FRAME_STATE_DESTROYED
}
