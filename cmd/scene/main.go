// Command scene renders a configurable number of instances of one model and
// rebuilds its swapchain as the window changes.
//
// Keys: space adds an instance, backspace removes the newest, v toggles the
// oldest instance's visibility, escape quits.
package main

//go:generate glslc shaders/shader.vert -o assets/shaders/vert.spv
//go:generate glslc shaders/plain.frag -o assets/shaders/frag.spv
//go:generate glslc shaders/textured.frag -o assets/shaders/textured.spv

import (
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/forward/config"
)

func main() {
	runtime.LockOSThread()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
	log.SetLevel(cfg.LogLevel())

	app := &application{
		cfg: cfg,
		log: log,
	}

	err = app.Run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
