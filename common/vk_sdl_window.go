package common

import (
	"fmt"
	"log"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/veandco/go-sdl2/sdl"
)

const APPLICATION_NAME = "GPU scene data"
const APP_MAJOR, APP_MINOR, APP_PATCH = 1, 0, 0
const ENGINE_NAME = "No Engine"
const ENGINE_MAJOR, ENGINE_MINOR, ENGINE_PATCH = 1, 0, 0

const SDL_MAJOR, SDL_MINOR, SDL_PATCH = int(sdl.MAJOR_VERSION), int(sdl.MINOR_VERSION), int(sdl.PATCHLEVEL)

// Vulkan API of the go bindings = v1.0.7, as per: https://github.com/goki/vulkan = 1.3.239
const VK_API_MAJOR, VK_API_MINOR, VK_API_PATCH int = 1, 3, 239

// Window uses SDL to load the Vulkan loader and to create the instance. The scene layer never presents, so the
// window stays hidden and no surface is created.
type Window struct {
	sdlVersion string
	vkVersion  string

	Win  *sdl.Window
	Inst *vk.Instance
	// ProcAddr is vkGetInstanceProcAddr as resolved by SDL
	ProcAddr unsafe.Pointer
}

// NewWindow initializes SDL, the Vulkan API and an instance. On tear down, we need to destroy the vk.instance
// and the sdl.window.
func NewWindow(title string, validationLayers []string) *Window {
	window := &Window{
		sdlVersion: fmt.Sprintf("v%d.%d.%d", SDL_MAJOR, SDL_MINOR, SDL_PATCH),
		vkVersion:  fmt.Sprintf("v%d.%d.%d", VK_API_MAJOR, VK_API_MINOR, VK_API_PATCH),
	}
	window.initSDLWindow(title)
	window.initVulkan()
	window.createVulkanInstance(len(validationLayers) > 0, validationLayers)
	log.Printf("Generated SDL/Vulkan instance - SDL: %s Vulkan API: %s", window.sdlVersion, window.vkVersion)
	return window
}

func (w *Window) Destroy() {
	vk.DestroyInstance(*w.Inst, nil)
	err := w.Win.Destroy()
	if err != nil {
		log.Fatal(err)
	}
	sdl.Quit()
}

func (w *Window) initSDLWindow(title string) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		log.Panicf("Failed to initialize SDL: %v", err)
	}
	log.Println("Initialized SDL")
	win, err := sdl.CreateWindow(
		title,
		sdl.WINDOWPOS_UNDEFINED,
		sdl.WINDOWPOS_UNDEFINED,
		1,
		1,
		sdl.WINDOW_HIDDEN|sdl.WINDOW_VULKAN,
	)
	if err != nil {
		log.Panicf("Failed to create SDL window for use with Vulkan: %v", err)
	}
	w.Win = win
}

func (w *Window) initVulkan() {
	// Find and load Vulkan addresses to be able to call driver level functions via provided mechanism
	w.ProcAddr = sdl.VulkanGetVkGetInstanceProcAddr()
	vk.SetGetInstanceProcAddr(w.ProcAddr)
	err := vk.Init()
	if err != nil {
		log.Panicf("Failed to initialize Vulkan API: %v", err)
	}
}

func (w *Window) createVulkanInstance(enableValidation bool, validationLayers []string) {
	requiredExtensions := w.Win.VulkanGetInstanceExtensions()
	checkInstanceExtensionSupport(requiredExtensions)

	if enableValidation {
		log.Printf("Validation enabled, checking layer support")
		checkValidationLayerSupport(validationLayers)
	}
	applicationInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PNext:              nil,
		PApplicationName:   APPLICATION_NAME,
		ApplicationVersion: vk.MakeVersion(APP_MAJOR, APP_MINOR, APP_PATCH),
		PEngineName:        ENGINE_NAME,
		EngineVersion:      vk.MakeVersion(ENGINE_MAJOR, ENGINE_MINOR, ENGINE_PATCH),
		ApiVersion:         vk.MakeVersion(VK_API_MAJOR, VK_API_MINOR, VK_API_PATCH),
	}
	createInfo := &vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PNext:                   nil,
		Flags:                   0,
		PApplicationInfo:        applicationInfo,
		EnabledLayerCount:       0,
		PpEnabledLayerNames:     nil,
		EnabledExtensionCount:   uint32(len(requiredExtensions)),
		PpEnabledExtensionNames: TerminatedStrs(requiredExtensions),
	}
	if enableValidation {
		createInfo.EnabledLayerCount = uint32(len(validationLayers))
		createInfo.PpEnabledLayerNames = TerminatedStrs(validationLayers)
	}
	ins, err := VkCreateInstance(createInfo, nil)
	if err != nil {
		log.Panicf("Failed to create vk instance, due to: %v", err)
	}
	w.Inst = &ins
}

func checkInstanceExtensionSupport(requiredInstanceExt []string) {
	supportedExtNames := ReadInstanceExtensionPropertyNames()
	log.Printf("Required instance extensions: %v", requiredInstanceExt)
	log.Printf("Available extensions (%d): %v", len(supportedExtNames), supportedExtNames)

	if !AllOfAinB(requiredInstanceExt, supportedExtNames) {
		log.Panicf("At least one required instance extension is not supported")
	} else {
		log.Println("Success - All required instance extensions are supported")
	}
}

func checkValidationLayerSupport(requiredLayers []string) {
	supportedLayerNames := ReadInstanceLayerPropertyNames()
	log.Printf("Desired validation layers: %v", requiredLayers)
	log.Printf("Supported layers (%d): %v", len(supportedLayerNames), supportedLayerNames)

	if !AllOfAinB(requiredLayers, supportedLayerNames) {
		log.Panicf("At least one desired layer is not supported")
	} else {
		log.Println("Success - All desired validation layers are supported")
	}
}
