package common

import (
	"log"
	"sync"
	"unsafe"

	"GPU_scene_data/gpu"

	vk "github.com/goki/vulkan"
)

var VALIDATION_LAYERS = []string{
	"VK_LAYER_KHRONOS_validation",
}

// Buffer device addresses and descriptor indexing are core since 1.2, acceleration structures are not.
var DEVICE_EXTENSIONS = []string{
	"VK_KHR_acceleration_structure",
	"VK_KHR_deferred_host_operations",
}

var (
	_ gpu.Device         = (*Device)(nil)
	_ gpu.Queue          = (*Queue)(nil)
	_ gpu.CommandContext = (*CommandContext)(nil)
)

// Device is the Vulkan implementation of gpu.Device. It owns the logical device, one queue, the command pool
// used for one time submissions and the update-after-bind descriptor pool every scene set is allocated from.
type Device struct {
	PhysicalDevice vk.PhysicalDevice
	PdProps        vk.PhysicalDeviceProperties
	PdMemoryProps  vk.PhysicalDeviceMemoryProperties
	QFamilies      QueueFamilyIndices

	D        vk.Device
	ComputeQ vk.Queue

	rt             *rtDispatch
	allocFlags     unsafe.Pointer
	commandPool    vk.CommandPool
	descriptorPool vk.DescriptorPool

	// guards the queue and the command pool, neither may be used from two threads at once
	mu sync.Mutex
}

func NewDeviceContext(w *Window, validationLayers []string) *Device {
	dc := &Device{
		rt: newRtDispatch(w.ProcAddr, *w.Inst),
	}
	dc.selectPhysicalDevice(*w.Inst)
	dc.createLogicalDevice(validationLayers)
	dc.createCommandPool()
	dc.createDescriptorPool()
	return dc
}

// Destroy all objects created by itself. Resources handed out by the device must be destroyed before.
func (dc *Device) Destroy() {
	vk.DeviceWaitIdle(dc.D)
	vk.DestroyDescriptorPool(dc.D, dc.descriptorPool, nil)
	vk.DestroyCommandPool(dc.D, dc.commandPool, nil)
	vk.DestroyDevice(dc.D, nil)
	freeC(dc.allocFlags)
	dc.allocFlags = nil
}

// Queue returns the queue SubmitOnce runs on.
func (dc *Device) Queue() *Queue {
	return &Queue{dc: dc}
}

func (dc *Device) selectPhysicalDevice(in vk.Instance) {
	availableDevices := ReadPhysicalDevices(in)
	var pd vk.PhysicalDevice
	for i := range availableDevices {
		if !dc.isDeviceSuitable(availableDevices[i]) {
			continue
		}
		props := ReadPhysicalDeviceProperties(availableDevices[i])
		if pd == nil || props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			pd = availableDevices[i]
		}
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			break
		}
	}
	if pd == nil {
		log.Panicf("No physical device (GPU) with acceleration structure support found")
	}
	dc.PhysicalDevice = pd

	// Also set related member variables for dc.PhysicalDevice as they are needed later
	qf, err := findQueueFamilies(dc.PhysicalDevice)
	if err != nil {
		log.Panicf("Failed to read queue families from selected device due to: %s", err)
	}
	dc.QFamilies = *qf
	dc.PdProps = ReadPhysicalDeviceProperties(dc.PhysicalDevice)
	dc.PdProps.Limits.Deref()
	dc.PdMemoryProps = ReadDeviceMemoryProperties(dc.PhysicalDevice)
	log.Printf("Selected device %s", vk.ToString(dc.PdProps.DeviceName[:]))
}

func (dc *Device) isDeviceSuitable(pd vk.PhysicalDevice) bool {
	pdProps := ReadPhysicalDeviceProperties(pd)
	pdQueueFams := ReadQueueFamilies(pd)
	features := dc.rt.features(pd)

	log.Printf("Physical device\n%s", ToStringPhysicalDeviceTable(pdProps, features, pdQueueFams))

	indices, err := findQueueFamilies(pd)
	if err != nil {
		log.Printf("Failed to get required queue families: %s", err)
		return false
	}
	apiSupported := pdProps.ApiVersion >= vk.MakeVersion(1, 2, 0)
	extensionsSupported := checkDeviceExtensionSupport(pd, DEVICE_EXTENSIONS)

	return apiSupported && indices.isAllQueuesFound() && extensionsSupported && features.complete()
}

func (dc *Device) createLogicalDevice(validationLayers []string) {
	queueInfos := dc.QFamilies.toQueueCreateInfos()
	// every feature lives in the pNext chain, PEnabledFeatures stays empty
	features := newDeviceFeatureChain()
	if features == nil {
		log.Panicf("Failed to allocate device feature chain")
	}
	defer freeC(features)

	deviceCreatInfo := &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		PNext:                   features,
		Flags:                   0,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledLayerCount:       0,
		PpEnabledLayerNames:     nil,
		EnabledExtensionCount:   uint32(len(DEVICE_EXTENSIONS)),
		PpEnabledExtensionNames: TerminatedStrs(DEVICE_EXTENSIONS),
		PEnabledFeatures:        nil,
	}
	if len(validationLayers) > 0 {
		deviceCreatInfo.EnabledLayerCount = uint32(len(validationLayers))
		deviceCreatInfo.PpEnabledLayerNames = TerminatedStrs(validationLayers)
	}

	var err error
	dc.D, err = VkCreateDevice(dc.PhysicalDevice, deviceCreatInfo, nil)
	if err != nil {
		log.Panicf("Failed create logical device due to: %s", err)
	}
	dc.ComputeQ, err = VkGetDeviceQueue(dc.D, dc.QFamilies.ComputeFamily, 0)
	if err != nil {
		log.Panicf("Failed to get 'compute' device queue: %s", err)
	}
	if err = dc.rt.loadDevice(dc.D); err != nil {
		log.Panicf("Failed to load device entry points: %s", err)
	}
	dc.allocFlags = newMemoryAllocateFlags()
	if dc.allocFlags == nil {
		log.Panicf("Failed to allocate memory allocate flags")
	}
}

func (dc *Device) createCommandPool() {
	pool, err := VKSCreateCommandPool(dc.D, vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit), *dc.QFamilies.ComputeFamily)
	if err != nil {
		log.Panicf("Failed to create command pool: %s", err)
	}
	dc.commandPool = pool
}

func checkDeviceExtensionSupport(pd vk.PhysicalDevice, requiredDeviceExt []string) bool {
	supportedExt := ReadDeviceExtensionProperties(pd)
	log.Printf("Required device extensions: %v", requiredDeviceExt)
	log.Printf("Available device extensions (%d) [...]\n", len(supportedExt))
	supportedExtNames := make([]string, len(supportedExt))
	for i, ext := range supportedExt {
		supportedExtNames[i] = vk.ToString(ext.ExtensionName[:])
	}
	return AllOfAinB(requiredDeviceExt, supportedExtNames)
}
