package renderer

import (
	"fmt"

	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// UniformUpdater writes per-frame data straight into the slot's mapped uniform buffer.
// The memory is host coherent so no flush, staging or command buffer is involved.
type UniformUpdater struct {
	frames []*FrameResources
}

func NewUniformUpdater(frames []*FrameResources) *UniformUpdater {
	return &UniformUpdater{frames: frames}
}

// Update must only be called for a slot whose fence has been waited on this frame.
func (u *UniformUpdater) Update(slot int, data []byte) error {
	if slot < 0 || slot >= len(u.frames) {
		return fmt.Errorf("%w: %d of %d", core.ErrInvalidFrameSlot, slot, len(u.frames))
	}
	buf := u.frames[slot].Uniform
	if buf == nil || buf.Mapped() == nil {
		return fmt.Errorf("%w: slot %d has no mapped uniform buffer", core.ErrInvalidFrameSlot, slot)
	}
	if uint64(len(data)) > buf.Size {
		return fmt.Errorf("uniform data of %d bytes exceeds buffer size %d", len(data), buf.Size)
	}
	copy(buf.Mapped(), data)
	return nil
}

func (u *UniformUpdater) UpdateTransform(slot int, ubo metadata.UniformBufferObject) error {
	return u.Update(slot, ubo.Bytes())
}
