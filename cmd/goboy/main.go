// Command goboy runs the handheld console variant (spec §4.5-4.8) headless,
// mirroring cmd/gones's CLI contract on a console built from gbcpu/gbppu/
// gbcartridge/gbbus instead of the NES package set.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"gones/internal/driver"
	"gones/internal/gbbus"
	"gones/internal/gbcartridge"
	"gones/internal/keybinding"
	"gones/internal/version"
	"gones/internal/video"
)

// cyclesPerFrame is the handheld's 4.194304MHz clock divided by its ~59.7Hz
// refresh rate, per spec §4.8.
const cyclesPerFrame = 70224

func main() {
	app := &cli.App{
		Name:        "goboy",
		Usage:       "a handheld console emulator",
		Description: "loads a handheld cartridge and steps it through the same driver.Instance frame loop as gones",
		Version:     version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rom-path", Usage: "path to the handheld ROM file to load"},
			&cli.StringFlag{Name: "key-binding-path", Usage: "path to an INI file with [player1]/[player2] key bindings"},
			&cli.Float64Flag{Name: "scale", Value: 2.0, Usage: "display scale factor for screenshot export"},
			&cli.StringFlag{Name: "save-path", Usage: "directory for save-state snapshots"},
			&cli.BoolFlag{Name: "nogui", Usage: "run headless, dumping sampled frames to PPM (always true: goboy has no GUI backend yet)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Printf("goboy: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	romPath := c.String("rom-path")
	if romPath == "" {
		return cli.Exit("ROM file required (--rom-path)", 1)
	}

	bindings, err := loadKeyBindings(c.String("key-binding-path"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("key bindings: %v", err), 1)
	}
	printKeyBindings(bindings)

	data, err := os.ReadFile(romPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to read ROM: %v", err), 1)
	}

	cart, err := gbcartridge.Load(data)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load cartridge: %v", err), 1)
	}
	fmt.Printf("loaded %q (mapper %02X, %d ROM banks)\n", cart.Title(), cart.MapperID(), cart.ROMBanks())

	console := gbbus.New()
	console.LoadCartridge(cart)
	console.Reset()

	instance := driver.NewInstance(console, cyclesPerFrame)

	savePath := c.String("save-path")
	if savePath != "" {
		fmt.Printf("save states will be written under %s\n", savePath)
	}

	scale := c.Float64("scale")
	for frame := 0; frame < 120; frame++ {
		instance.Frame(0)
		if frame == 30 || frame == 60 || frame == 119 {
			filename := fmt.Sprintf("goboy_frame_%d.ppm", frame)
			if err := saveFrameAsPPM(instance.GetFrameBuffer(), scale, filename); err != nil {
				log.Printf("failed to write %s: %v", filename, err)
			} else {
				fmt.Printf("wrote %s\n", filename)
			}
		}
	}

	fmt.Printf("ran %d frames (%d cycles)\n", instance.GetFrameCount(), instance.GetCycleCount())
	return nil
}

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

func saveFrameAsPPM(frameBuffer []uint32, scale float64, filename string) error {
	img := video.ScaleFrame(frameBuffer, 160, 144, scale)
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	bounds := img.Bounds()
	fmt.Fprintf(f, "P3\n%d %d\n255\n", bounds.Dx(), bounds.Dy())
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			fmt.Fprintf(f, "%d %d %d ", r>>8, g>>8, b>>8)
		}
		fmt.Fprintln(f)
	}
	return nil
}
