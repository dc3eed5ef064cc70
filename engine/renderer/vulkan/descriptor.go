package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// VulkanDescriptors is the layout and pool for the per-frame uniform sets.
// Binding 0 is a uniform buffer read by the vertex stage.
type VulkanDescriptors struct {
	Layout vk.DescriptorSetLayout
	Pool   vk.DescriptorPool
	// Sets are freed with the pool.
	MaxSets uint32
}

func NewDescriptors(context *VulkanContext, maxSets uint32) (*VulkanDescriptors, error) {
	descriptors := &VulkanDescriptors{MaxSets: maxSets}

	uboLayoutBinding := vk.DescriptorSetLayoutBinding{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeUniformBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(vk.ShaderStageVertexBit),
	}
	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings:    []vk.DescriptorSetLayoutBinding{uboLayoutBinding},
	}
	if res := vk.CreateDescriptorSetLayout(context.Device.LogicalDevice, &layoutInfo, context.Allocator, &descriptors.Layout); res != vk.Success {
		err := fmt.Errorf("vkCreateDescriptorSetLayout failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	poolSizes := []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeUniformBuffer,
			DescriptorCount: maxSets,
		},
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
		MaxSets:       maxSets,
	}
	if res := vk.CreateDescriptorPool(context.Device.LogicalDevice, &poolInfo, context.Allocator, &descriptors.Pool); res != vk.Success {
		err := fmt.Errorf("vkCreateDescriptorPool failed with %s", VulkanResultString(res))
		core.LogError(err.Error())
		descriptors.Destroy(context)
		return nil, err
	}

	core.LogDebug("Uniform descriptor layout and pool created for %d sets.", maxSets)
	return descriptors, nil
}

func (d *VulkanDescriptors) Destroy(context *VulkanContext) {
	if d.Pool != nil {
		vk.DestroyDescriptorPool(context.Device.LogicalDevice, d.Pool, context.Allocator)
		d.Pool = nil
	}
	if d.Layout != nil {
		vk.DestroyDescriptorSetLayout(context.Device.LogicalDevice, d.Layout, context.Allocator)
		d.Layout = nil
	}
}

// AllocateDescriptorSet allocates one set from the pool and points binding 0 at
// the first size bytes of the uniform buffer.
func (vr *VulkanRenderer) AllocateDescriptorSet(uniform metadata.BufferHandle, size uint64) (metadata.DescriptorSetHandle, error) {
	descriptors := vr.context.Descriptors
	if descriptors == nil {
		return metadata.NullHandle, fmt.Errorf("pipeline was built without uniform input")
	}
	buffer := vr.buffer(uniform)
	if buffer == nil {
		return metadata.NullHandle, fmt.Errorf("unknown buffer %d", uniform)
	}

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     descriptors.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{descriptors.Layout},
	}

	var set vk.DescriptorSet
	if err := vr.context.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.AllocateDescriptorSets(vr.context.Device.LogicalDevice, &allocInfo, &set); res != vk.Success {
			return fmt.Errorf("vkAllocateDescriptorSets failed with %s", VulkanResultString(res))
		}

		descriptorWrites := []vk.WriteDescriptorSet{
			{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          set,
				DstBinding:      0,
				DstArrayElement: 0,
				DescriptorType:  vk.DescriptorTypeUniformBuffer,
				DescriptorCount: 1,
				PBufferInfo: []vk.DescriptorBufferInfo{{
					Buffer: buffer,
					Offset: 0,
					Range:  vk.DeviceSize(size),
				}},
			},
		}
		vk.UpdateDescriptorSets(vr.context.Device.LogicalDevice, uint32(len(descriptorWrites)), descriptorWrites, 0, nil)
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return metadata.NullHandle, err
	}

	return metadata.DescriptorSetHandle(vr.descriptorSets.Insert(set)), nil
}

func (vr *VulkanRenderer) CmdBindDescriptorSet(cb metadata.CommandBufferHandle, set metadata.DescriptorSetHandle) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	s, ok := vr.descriptorSets.Get(uint64(set))
	if !ok {
		core.LogError("unknown descriptor set %d", set)
		return
	}
	vk.CmdBindDescriptorSets(
		c.Handle,
		vk.PipelineBindPointGraphics,
		vr.context.Pipeline.PipelineLayout,
		0,
		1,
		[]vk.DescriptorSet{s},
		0,
		nil)
}
