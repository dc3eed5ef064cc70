package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/fromscratch/engine/core"
	"github.com/spaghettifunk/fromscratch/engine/renderer/metadata"
)

// VulkanPipeline holds a Vulkan pipeline and its layout.
type VulkanPipeline struct {
	Handle         vk.Pipeline
	PipelineLayout vk.PipelineLayout
}

type VulkanPipelineConfig struct {
	Renderpass *VulkanRenderpass
	// The stride of the vertex data to be used.
	Stride     uint32
	Attributes []vk.VertexInputAttributeDescription
	// Empty when the shaders take no descriptor input.
	DescriptorSetLayouts []vk.DescriptorSetLayout
	Stages               []vk.PipelineShaderStageCreateInfo
	// Initial viewport and scissor. Both are dynamic.
	Extent      vk.Extent2D
	IsWireframe bool
}

// vertexAttributes describes metadata.Vertex: a vec2 position followed by a vec3 color.
func vertexAttributes() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   0,
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   8,
		},
	}
}

func NewGraphicsPipeline(context *VulkanContext, config *VulkanPipelineConfig) (*VulkanPipeline, error) {
	outPipeline := &VulkanPipeline{}

	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports: []vk.Viewport{{
			Width:    float32(config.Extent.Width),
			Height:   float32(config.Extent.Height),
			MaxDepth: 1.0,
		}},
		ScissorCount: 1,
		PScissors:    []vk.Rect2D{{Extent: config.Extent}},
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                vk.CullModeFlags(vk.CullModeNone),
		FrontFace:               vk.FrontFaceClockwise,
		DepthBiasEnable:         vk.False,
	}
	if config.IsWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Viewport and scissor follow the swapchain extent at record time.
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0,
		Stride:    config.Stride,
		InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(config.Attributes)),
		PVertexAttributeDescriptions:    config.Attributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(config.DescriptorSetLayouts)),
		PSetLayouts:    config.DescriptorSetLayouts,
	}

	if err := context.locks.SafeCall(PipelineManagement, func() error {
		var pPipelineLayout vk.PipelineLayout
		result := vk.CreatePipelineLayout(context.Device.LogicalDevice, &pipelineLayoutCreateInfo, context.Allocator, &pPipelineLayout)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreatePipelineLayout failed with %s", VulkanResultString(result))
		}
		outPipeline.PipelineLayout = pPipelineLayout
		return nil
	}); err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(config.Stages)),
		PStages:             config.Stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          config.Renderpass.Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pPipelines := make([]vk.Pipeline, 1)
	if err := context.locks.SafeCall(PipelineManagement, func() error {
		result := vk.CreateGraphicsPipelines(
			context.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			context.Allocator,
			pPipelines)
		if !VulkanResultIsSuccess(result) {
			return fmt.Errorf("vkCreateGraphicsPipelines failed with %s", VulkanResultString(result))
		}
		return nil
	}); err != nil {
		core.LogError(err.Error())
		outPipeline.Destroy(context)
		return nil, err
	}
	outPipeline.Handle = pPipelines[0]

	core.LogDebug("Graphics pipeline created!")
	return outPipeline, nil
}

func (pipeline *VulkanPipeline) Destroy(context *VulkanContext) {
	context.locks.SafeCall(PipelineManagement, func() error {
		if pipeline.Handle != nil {
			vk.DestroyPipeline(context.Device.LogicalDevice, pipeline.Handle, context.Allocator)
			pipeline.Handle = nil
		}
		if pipeline.PipelineLayout != nil {
			vk.DestroyPipelineLayout(context.Device.LogicalDevice, pipeline.PipelineLayout, context.Allocator)
			pipeline.PipelineLayout = nil
		}
		return nil
	})
}

func (pipeline *VulkanPipeline) Bind(commandBuffer *VulkanCommandBuffer, bindPoint vk.PipelineBindPoint) {
	vk.CmdBindPipeline(commandBuffer.Handle, bindPoint, pipeline.Handle)
}

// createPipeline compiles both shader stages, builds the pipeline and drops the
// modules again since the pipeline keeps its own copy.
func createPipeline(context *VulkanContext, vertexShader, fragmentShader []byte) error {
	vert, err := NewShaderStage(context, "vertex", vertexShader, vk.ShaderStageVertexBit)
	if err != nil {
		return err
	}
	defer vert.Destroy(context)

	frag, err := NewShaderStage(context, "fragment", fragmentShader, vk.ShaderStageFragmentBit)
	if err != nil {
		return err
	}
	defer frag.Destroy(context)

	config := &VulkanPipelineConfig{
		Renderpass: context.MainRenderpass,
		Stride:     uint32(metadata.VertexSize),
		Attributes: vertexAttributes(),
		Stages:     []vk.PipelineShaderStageCreateInfo{vert.ShaderStageCreateInfo, frag.ShaderStageCreateInfo},
		Extent:     context.Swapchain.Extent,
	}
	if context.Descriptors != nil {
		config.DescriptorSetLayouts = []vk.DescriptorSetLayout{context.Descriptors.Layout}
	}

	pipeline, err := NewGraphicsPipeline(context, config)
	if err != nil {
		return err
	}
	context.Pipeline = pipeline
	return nil
}

func (vr *VulkanRenderer) CmdBindPipeline(cb metadata.CommandBufferHandle) {
	c, err := vr.commandBuffer(cb)
	if err != nil {
		return
	}
	vr.context.Pipeline.Bind(c, vk.PipelineBindPointGraphics)
}
