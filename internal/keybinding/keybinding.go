// Package keybinding parses the key-binding file named by spec §6's
// `--key-binding-path` flag: an INI file with `[player1]`/`[player2]`
// sections mapping controller button names to host key names. Package
// input owns the actual host key-polling surface (a Non-goal reference
// implementation inherited from the teacher); this package only produces
// the button-name-to-key-name table the CLI hands off to it.
package keybinding

import (
	"fmt"

	"gopkg.in/ini.v1"

	"gones/internal/input"
)

// buttonNames lists the INI key names accepted in a [playerN] section, in
// the fixed controller bit order spec §6 names.
var buttonNames = []string{"a", "b", "select", "start", "up", "down", "left", "right"}

var nameToButton = map[string]input.Button{
	"a": input.ButtonA, "b": input.ButtonB,
	"select": input.ButtonSelect, "start": input.ButtonStart,
	"up": input.ButtonUp, "down": input.ButtonDown,
	"left": input.ButtonLeft, "right": input.ButtonRight,
}

// Binding maps each controller button to the host key name configured for
// it (e.g. "ArrowUp", "KeyZ"); resolving that name to an actual host key
// code is the input package's job, not this one's.
type Binding map[input.Button]string

// Table holds the per-player binding produced by Load.
type Table struct {
	Player1 Binding
	Player2 Binding
}

// Load reads an INI file at path and builds a Table from its [player1] and
// [player2] sections. A missing section yields an empty Binding rather than
// an error, since the second controller is optional.
func Load(path string) (*Table, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("keybinding: load %s: %w", path, err)
	}

	t := &Table{
		Player1: make(Binding),
		Player2: make(Binding),
	}
	loadSection(cfg, "player1", t.Player1)
	loadSection(cfg, "player2", t.Player2)
	return t, nil
}

func loadSection(cfg *ini.File, name string, into Binding) {
	if !cfg.HasSection(name) {
		return
	}
	section := cfg.Section(name)
	for _, buttonName := range buttonNames {
		key := section.Key(buttonName)
		if key.String() == "" {
			continue
		}
		into[nameToButton[buttonName]] = key.String()
	}
}

// Default returns the built-in WASD/arrow-key binding used when no
// --key-binding-path is given, matching the teacher's hardcoded default
// control scheme (arrow keys/WASD for the D-pad, Z/X for B/A, Enter/Space
// for Start/Select).
func Default() *Table {
	return &Table{
		Player1: Binding{
			input.ButtonUp:     "ArrowUp",
			input.ButtonDown:   "ArrowDown",
			input.ButtonLeft:   "ArrowLeft",
			input.ButtonRight:  "ArrowRight",
			input.ButtonA:      "KeyZ",
			input.ButtonB:      "KeyX",
			input.ButtonStart:  "Enter",
			input.ButtonSelect: "Space",
		},
		Player2: Binding{},
	}
}
