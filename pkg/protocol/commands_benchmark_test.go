package protocol

import (
	"testing"
)

// benchFrames builds a telemetry burst of the size a busy client
// produces: a few frames per flush, a few fingers per frame.
func benchFrames() []TouchFrame {
	frames := make([]TouchFrame, 0, 6)
	for i := 0; i < 6; i++ {
		frames = append(frames, TouchFrame{
			Time: float32(i) * 0.016,
			Points: []TouchPoint{
				{ID: 0, Pos: NewCompactPos(-0.42, 0.13)},
				{ID: 1, Pos: NewCompactPos(0.87, -0.55)},
				{ID: 2, Pos: NewCompactPos(0.02, 0.99)},
			},
		})
	}
	return frames
}

func BenchmarkEncodeClientTouches(b *testing.B) {
	cmd := ClientTouches{Frames: benchFrames()}

	b.ReportAllocs()

	for b.Loop() {
		if _, err := EncodeClientCommand(cmd); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeClientTouches(b *testing.B) {
	data, err := EncodeClientCommand(ClientTouches{Frames: benchFrames()})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()

	for b.Loop() {
		if _, err := DecodeClientCommand(data); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncodeServerTouches(b *testing.B) {
	cmd := ServerTouches{Player: 7, Frames: benchFrames()}

	b.ReportAllocs()

	for b.Loop() {
		if _, err := EncodeServerCommand(cmd); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeServerMessage(b *testing.B) {
	data, err := EncodeServerCommand(ServerMessage{
		Message: MsgChat{User: 7, Content: "benchmark chat payload of a plausible everyday size"},
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()

	for b.Loop() {
		if _, err := DecodeServerCommand(data); err != nil {
			b.Fatal(err)
		}
	}
}
