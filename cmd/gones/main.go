// Package main implements the gones NES emulator executable.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"gones/internal/app"
	"gones/internal/keybinding"
	"gones/internal/version"
	"gones/internal/video"
)

func main() {
	cliApp := &cli.App{
		Name:  "gones",
		Usage: "a cycle-accurate NES emulator",
		Description: "A modern NES (Nintendo Entertainment System) emulator written in Go.\n" +
			"   Features cycle-accurate emulation, save states, and a configurable\n" +
			"   key-binding scheme.",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "rom-path",
				Usage: "path to the NES ROM file to load",
			},
			&cli.StringFlag{
				Name:  "key-binding-path",
				Usage: "path to an INI file with [player1]/[player2] key bindings",
			},
			&cli.Float64Flag{
				Name:  "scale",
				Value: 2.0,
				Usage: "display scale factor",
			},
			&cli.StringFlag{
				Name:  "save-path",
				Usage: "directory for save-state snapshots",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the application JSON configuration file",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging and overlays",
			},
			&cli.BoolFlag{
				Name:  "nogui",
				Usage: "run headless (no window), dumping sampled frames to PPM",
			},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Printf("gones: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	setupGracefulShutdown()

	fmt.Println("gones - Go NES Emulator starting...")

	bindings, err := loadKeyBindings(c.String("key-binding-path"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("key bindings: %v", err), 1)
	}
	printKeyBindings(bindings)

	configPath := c.String("config")
	if configPath == "" {
		configPath = app.GetDefaultConfigPath()
	}

	nogui := c.Bool("nogui")
	application, err := app.NewApplicationWithMode(configPath, nogui)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create application: %v", err), 1)
	}
	defer func() {
		if err := application.Cleanup(); err != nil {
			log.Printf("application cleanup error: %v", err)
		}
	}()

	config := application.GetConfig()
	if scale := c.Float64("scale"); scale > 0 {
		config.Window.Scale = int(scale + 0.5)
	}
	if savePath := c.String("save-path"); savePath != "" {
		config.Paths.SaveStates = savePath
	}
	if nogui {
		config.Video.Backend = "headless"
		fmt.Println("headless mode requested")
	}
	if c.Bool("debug") {
		config.UpdateDebug(true, true, true)
		application.ApplyDebugSettings()
		fmt.Println("debug mode enabled")
	}

	romPath := c.String("rom-path")
	if romPath != "" {
		fmt.Printf("loading ROM: %s\n", romPath)
		if err := application.LoadROM(romPath); err != nil {
			return cli.Exit(fmt.Sprintf("failed to load ROM: %v", err), 1)
		}
		fmt.Println("ROM loaded successfully")

		if c.Bool("debug") {
			application.ApplyDebugSettings()
		}
	}

	if nogui {
		if romPath == "" {
			return cli.Exit("ROM file required for headless mode", 1)
		}
		runHeadlessMode(application, c.Float64("scale"))
	} else {
		fmt.Println("starting GUI mode...")
		if err := runGUIMode(application); err != nil {
			return cli.Exit(fmt.Sprintf("GUI mode failed: %v", err), 1)
		}
	}

	fmt.Println("emulator shutting down...")
	return nil
}

// loadKeyBindings loads the table named by --key-binding-path, or falls
// back to the built-in default scheme when the flag is empty.
func loadKeyBindings(path string) (*keybinding.Table, error) {
	if path == "" {
		return keybinding.Default(), nil
	}
	return keybinding.Load(path)
}

func printKeyBindings(t *keybinding.Table) {
	fmt.Println("Player 1 bindings:")
	for button, key := range t.Player1 {
		fmt.Printf("  %v -> %s\n", button, key)
	}
}

// runGUIMode runs the full GUI application
func runGUIMode(application *app.Application) error {
	fmt.Println("initializing GUI application...")

	config := application.GetConfig()
	windowWidth, windowHeight := config.GetWindowResolution()
	fmt.Printf("   Window: %dx%d (Scale: %dx)\n", windowWidth, windowHeight, config.Window.Scale)
	fmt.Printf("   Audio: %s (%d Hz, %.0f%% volume)\n",
		enabledString(config.Audio.Enabled),
		config.Audio.SampleRate,
		config.Audio.Volume*100)
	fmt.Printf("   Video: %s, %s, VSync: %s\n",
		config.Video.Filter,
		config.Video.AspectRatio,
		enabledString(config.Video.VSync))

	fmt.Println("starting main application loop...")
	if err := application.Run(); err != nil {
		return fmt.Errorf("application run failed: %v", err)
	}

	fmt.Printf("session statistics:\n")
	fmt.Printf("   Frames rendered: %d\n", application.GetFrameCount())
	fmt.Printf("   Session time: %v\n", application.GetUptime())
	fmt.Printf("   Average FPS: %.1f\n", application.GetFPS())

	return nil
}

// runHeadlessMode runs the emulator without GUI, sampling frames to PPM
// screenshots scaled by the --scale factor via internal/video.
func runHeadlessMode(application *app.Application, scale float64) {
	fmt.Println("running emulator in headless mode...")

	bus := application.GetBus()
	if bus == nil {
		fmt.Println("bus not initialized")
		return
	}

	const targetFrames = 120
	for frame := 0; frame < targetFrames; frame++ {
		for cycles := 0; cycles < 29780; cycles++ {
			bus.Step()
		}

		if frame == 30 || frame == 60 || frame == 119 {
			fmt.Printf("capturing frame %d...\n", frame+1)
			saveFrameBufferAsPPM(bus.PPU.GetFrameBuffer(), scale, fmt.Sprintf("frame_%03d.ppm", frame+1))
			analyzeFrameBuffer(bus.PPU.GetFrameBuffer(), frame+1)
		}

		if frame%30 == 29 {
			fmt.Printf("%d/%d frames complete\n", frame+1, targetFrames)
		}
	}

	fmt.Println("headless mode complete")
}

// saveFrameBufferAsPPM scales the frame buffer per --scale and writes it as
// a PPM image file.
func saveFrameBufferAsPPM(frameBuffer [256 * 240]uint32, scale float64, filename string) {
	img := video.ScaleFrame(frameBuffer[:], 256, 240, scale)

	file, err := os.Create(filename)
	if err != nil {
		fmt.Printf("failed to create %s: %v\n", filename, err)
		return
	}
	defer file.Close()

	bounds := img.Bounds()
	fmt.Fprintf(file, "P3\n%d %d\n255\n", bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := img.RGBAAt(x, y)
			fmt.Fprintf(file, "%d %d %d ", px.R, px.G, px.B)
		}
		fmt.Fprintf(file, "\n")
	}

	fmt.Printf("%s saved (%dx%d)\n", filename, bounds.Dx(), bounds.Dy())
}

// analyzeFrameBuffer analyzes the frame buffer content
func analyzeFrameBuffer(frameBuffer [256 * 240]uint32, frame int) {
	colorCounts := make(map[uint32]int)
	for _, pixel := range frameBuffer {
		colorCounts[pixel]++
	}

	nonBlackPixels := 0
	for color, count := range colorCounts {
		if color != 0x000000 {
			nonBlackPixels += count
		}
	}

	fmt.Printf("   frame %d: %d distinct colors, %d non-black pixels (%.1f%%)\n",
		frame, len(colorCounts), nonBlackPixels,
		float64(nonBlackPixels)/float64(256*240)*100)
}

// setupGracefulShutdown sets up signal handling for graceful shutdown
func setupGracefulShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Println("\ninterrupt received, shutting down gracefully...")
		os.Exit(0)
	}()
}

// enabledString returns "enabled" or "disabled" based on boolean value
func enabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
