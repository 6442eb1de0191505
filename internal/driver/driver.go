// Package driver implements the timing driver described by spec §4.8: a
// frame loop that steps a console, drains an inbound message channel for
// interrupts and completed frames, and returns once a cycle budget or a
// wall-clock deadline is reached.
package driver

import "time"

// MessageKind identifies the payload carried by a Message.
type MessageKind int

const (
	// CPUInterrupt asks the Instance to deliver an interrupt of the given
	// InterruptKind to the console on the next drain.
	CPUInterrupt MessageKind = iota
	// PPURender carries a completed frame buffer to replace the
	// Instance's current output frame.
	PPURender
)

// InterruptKind names the interrupt line a CPUInterrupt message targets.
type InterruptKind int

const (
	InterruptNMI InterruptKind = iota
	InterruptIRQ
)

// Message is one entry on an Instance's inbound channel, sent by the
// console's coprocessors (PPU, APU, mapper) as they complete frames or
// request interrupts.
type Message struct {
	Kind      MessageKind
	Interrupt InterruptKind
	Frame     []uint32
}

// Console is the minimal surface a driven system (the NES core today, the
// handheld core once built) must expose to be driven by an Instance. Both
// consoles already run CPU/PPU/APU (or CPU/PPU/timer) steps internally in
// the correct per-step ratio; Step here corresponds to spec §4.8's
// `instance.step()` — one CPU instruction plus its dependent coprocessor
// cycles.
type Console interface {
	Step()
	GetCycleCount() uint64
	GetFrameBuffer() []uint32
	GetAudioSamples() []float32
	Reset()
	DeliverInterrupt(kind InterruptKind)
}

// Instance binds one Console to one cartridge for its lifetime (spec §2)
// and drives it through Frame calls. It owns the double-buffered output
// frame and the inbound message channel coprocessors use to hand off
// completed frames and interrupt requests without the driver reaching
// into console internals.
type Instance struct {
	console        Console
	cyclesPerFrame uint64
	messages       chan Message

	frameBuffer  []uint32
	audioSamples []float32
	frameCount   uint64
	cycleCount   uint64
}

// NewInstance creates an Instance that drives console in steps of
// cyclesPerFrame CPU cycles per Frame call (29,781 for NTSC NES, 17,556
// for the Game Boy's 4.194304MHz/59.7Hz frame rate).
func NewInstance(console Console, cyclesPerFrame uint64) *Instance {
	return &Instance{
		console:        console,
		cyclesPerFrame: cyclesPerFrame,
		messages:       make(chan Message, 64),
	}
}

// Send posts a message to the Instance's inbound channel. Coprocessors
// (or their Bus-mediated callbacks) call this instead of writing to
// Instance fields directly, per spec §4.8/§9's message-passing discipline
// for frame hand-off and interrupt delivery. The channel is buffered and
// non-blocking: a full channel drops the message rather than stalling the
// emulation step that produced it, matching spec §4.8's bounded-sink rule.
func (in *Instance) Send(msg Message) {
	select {
	case in.messages <- msg:
	default:
	}
}

// Frame runs one frame: step the console, drain inbound messages, and
// repeat until cyclesPerFrame CPU cycles have elapsed or deadline has
// passed (deadline <= 0 disables the wall-clock bound and runs to
// cycle-completion only, which is what realtime hosts rarely want but
// deterministic tests always do). It returns the wall-clock time spent.
func (in *Instance) Frame(deadline time.Duration) time.Duration {
	start := time.Now()
	startCycles := in.console.GetCycleCount()
	targetCycles := startCycles + in.cyclesPerFrame

	for in.console.GetCycleCount() < targetCycles {
		in.console.Step()
		in.drainMessages()

		if deadline > 0 && time.Since(start) > deadline {
			break
		}
	}

	in.frameCount++
	in.cycleCount = in.console.GetCycleCount()

	if fb := in.console.GetFrameBuffer(); len(fb) > 0 {
		if len(in.frameBuffer) != len(fb) {
			in.frameBuffer = make([]uint32, len(fb))
		}
		copy(in.frameBuffer, fb)
	}

	if samples := in.console.GetAudioSamples(); len(samples) > 0 {
		if cap(in.audioSamples) < len(samples) {
			in.audioSamples = make([]float32, len(samples))
		} else {
			in.audioSamples = in.audioSamples[:len(samples)]
		}
		copy(in.audioSamples, samples)
	}

	return time.Since(start)
}

// drainMessages delivers every message currently queued without blocking,
// per spec §4.8 step 3: CpuInterrupt entries are delivered to the console,
// PpuRender entries replace the current output frame.
func (in *Instance) drainMessages() {
	for {
		select {
		case msg := <-in.messages:
			switch msg.Kind {
			case CPUInterrupt:
				in.console.DeliverInterrupt(msg.Interrupt)
			case PPURender:
				in.frameBuffer = msg.Frame
			}
		default:
			return
		}
	}
}

// Reset resets the console and the Instance's own frame/cycle counters.
func (in *Instance) Reset() {
	in.console.Reset()
	in.frameCount = 0
	in.cycleCount = 0
	for i := range in.frameBuffer {
		in.frameBuffer[i] = 0
	}
	in.audioSamples = in.audioSamples[:0]
}

// GetFrameBuffer returns the most recently completed frame.
func (in *Instance) GetFrameBuffer() []uint32 { return in.frameBuffer }

// GetAudioSamples returns the audio samples produced by the last Frame call.
func (in *Instance) GetAudioSamples() []float32 { return in.audioSamples }

// GetFrameCount returns the number of Frame calls completed.
func (in *Instance) GetFrameCount() uint64 { return in.frameCount }

// GetCycleCount returns the console's total elapsed CPU cycles.
func (in *Instance) GetCycleCount() uint64 { return in.cycleCount }

// SetCyclesPerFrame changes the cycle budget future Frame calls target.
func (in *Instance) SetCyclesPerFrame(cycles uint64) { in.cyclesPerFrame = cycles }
