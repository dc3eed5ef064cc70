package vulkan

import (
	"encoding/binary"
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
)

// VulkanShaderStage is a single shader stage.
type VulkanShaderStage struct {
	Handle vk.ShaderModule
	// The pipeline shader stage creation info.
	ShaderStageCreateInfo vk.PipelineShaderStageCreateInfo
}

func NewShaderStage(context *VulkanContext, name string, code []byte, shaderStageFlag vk.ShaderStageFlagBits) (*VulkanShaderStage, error) {
	if len(code) == 0 || len(code)%4 != 0 {
		err := fmt.Errorf("shader %s: SPIR-V size %d is not a positive multiple of 4", name, len(code))
		core.LogError(err.Error())
		return nil, err
	}

	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(code[i*4:])
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}

	stage := &VulkanShaderStage{}
	if res := vk.CreateShaderModule(context.Device.LogicalDevice, &createInfo, context.Allocator, &stage.Handle); res != vk.Success {
		err := fmt.Errorf("shader %s: vkCreateShaderModule failed with %s", name, VulkanResultString(res))
		core.LogError(err.Error())
		return nil, err
	}

	stage.ShaderStageCreateInfo = vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  shaderStageFlag,
		Module: stage.Handle,
		PName:  VulkanSafeString("main"),
	}
	core.LogDebug("Shader module %s created.", name)

	return stage, nil
}

func (s *VulkanShaderStage) Destroy(context *VulkanContext) {
	if s.Handle != nil {
		vk.DestroyShaderModule(context.Device.LogicalDevice, s.Handle, context.Allocator)
		s.Handle = nil
	}
}
