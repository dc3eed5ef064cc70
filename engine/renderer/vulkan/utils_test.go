package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestVulkanResultString(t *testing.T) {
	tests := []struct {
		result vk.Result
		want   string
	}{
		{vk.Success, "VK_SUCCESS"},
		{vk.Timeout, "VK_TIMEOUT"},
		{vk.ErrorOutOfDate, "VK_ERROR_OUT_OF_DATE_KHR"},
		{vk.Result(-12345), "VkResult(-12345)"},
	}
	for _, tt := range tests {
		if got := VulkanResultString(tt.result); got != tt.want {
			t.Errorf("VulkanResultString(%d) = %q, want %q", tt.result, got, tt.want)
		}
	}
}

func TestVulkanResultIsSuccess(t *testing.T) {
	for _, r := range []vk.Result{vk.Success, vk.Suboptimal, vk.Timeout, vk.NotReady} {
		if !VulkanResultIsSuccess(r) {
			t.Errorf("VulkanResultIsSuccess(%s) = false", VulkanResultString(r))
		}
	}
	for _, r := range []vk.Result{vk.ErrorDeviceLost, vk.ErrorOutOfDate, vk.ErrorOutOfHostMemory} {
		if VulkanResultIsSuccess(r) {
			t.Errorf("VulkanResultIsSuccess(%s) = true", VulkanResultString(r))
		}
	}
}

func TestVulkanSafeStrings(t *testing.T) {
	in := []string{"", "VK_KHR_surface", "done\x00"}
	got := VulkanSafeStrings(in)
	want := []string{"\x00", "VK_KHR_surface\x00", "done\x00"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("VulkanSafeStrings()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if in[1] != "VK_KHR_surface" {
		t.Errorf("input was modified: %q", in[1])
	}
}
