package main

import (
	"flag"
	"log"
	"os"
	"runtime"

	"GPU_scene_data/common"
	"GPU_scene_data/stl"
	vm "GPU_scene_data/vector_math"
)

const PROGRAM_NAME = "GPU scene data"

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.SetOutput(os.Stdout)
	log.Println("Starting scene data demo")
	log.Printf("Using GoLang: [%s]", runtime.Version())
	// SDL and Vulkan calls must stay on the thread that initialized them
	runtime.LockOSThread()
}

func main() {
	stlPath := flag.String("stl", "", "binary STL file to upload, a single triangle is used when empty")
	validation := flag.Bool("validation", false, "enable the Khronos validation layer")
	flag.Parse()

	var mesh *vm.Mesh
	if *stlPath == "" {
		mesh = triangle()
	} else {
		m, err := stl.ReadStlFile(*stlPath)
		if err != nil {
			log.Fatal(err)
		}
		mesh = m
	}

	var layers []string
	if *validation {
		layers = common.VALIDATION_LAYERS
	}
	window := common.NewWindow(PROGRAM_NAME, layers)
	defer window.Destroy()
	dev := common.NewDeviceContext(window, layers)
	defer dev.Destroy()

	scene, err := buildScene(dev, dev.Queue(), mesh)
	if err != nil {
		log.Panicf("Failed to build scene data: %s", err)
	}
	defer scene.destroy()
	log.Printf("Scene holds %d instances, %d primitives", scene.scene.InstanceCount(), scene.scene.PrimitiveCount())
}
