package common

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"
)

// ToStringPhysicalDeviceTable renders one candidate device with its queue families and the scene features it
// reports, for the device selection log.
func ToStringPhysicalDeviceTable(pdProps vk.PhysicalDeviceProperties, features featureSupport, qFamilies []vk.QueueFamilyProperties) string {
	strBuilder := strings.Builder{}
	for i := range qFamilies {
		prefix := "| "
		if i == len(qFamilies)-1 {
			prefix = "|_"
		}
		strBuilder.WriteString(fmt.Sprintf("%sQfamily[%d] %s\n", prefix, i, toStringQueueFamilyPropsTable(qFamilies[i])))
	}
	return fmt.Sprintf(
		"%s:\n|_api: %s, vendor: %s, type: %s\n|_features: %s\n%s",
		vk.ToString(pdProps.DeviceName[:]),
		vk.Version(pdProps.ApiVersion).String(),
		asVendorName(vk.VendorId(pdProps.VendorID)),
		toStringDeviceType(pdProps.DeviceType),
		features,
		strBuilder.String(),
	)
}

func asVendorName(v vk.VendorId) string {
	switch v {
	case 0x1002:
		return "AMD"
	case 0x10DE:
		return "NVIDIA"
	case 0x13B5:
		return "ARM"
	case 0x5143:
		return "Qualcomm"
	case 0x8086:
		return "INTEL"
	case 0x10005:
		return "Mesa"
	default:
		return "unknown"
	}
}

func toStringDeviceType(dt vk.PhysicalDeviceType) string {
	switch dt {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated Gpu"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete Gpu"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual Gpu"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	default:
		return "other"
	}
}

func toStringQueueFamilyPropsTable(q vk.QueueFamilyProperties) string {
	return fmt.Sprintf("Count: %2d, Flags: %v", q.QueueCount, toStringQueueFlags(q.QueueFlags))
}

func toStringQueueFlags(bits vk.QueueFlags) []string {
	var properties []string
	flags := vk.QueueFlagBits(bits)
	if flags&vk.QueueGraphicsBit > 0 {
		properties = append(properties, "VK_QUEUE_GRAPHICS_BIT")
	}
	if flags&vk.QueueComputeBit > 0 {
		properties = append(properties, "VK_QUEUE_COMPUTE_BIT")
	}
	if flags&vk.QueueTransferBit > 0 {
		properties = append(properties, "VK_QUEUE_TRANSFER_BIT")
	}
	return properties
}
