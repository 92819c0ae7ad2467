package market

import (
	"math"
	"testing"
)

func TestParseDirection(t *testing.T) {
	cases := []struct {
		in   string
		want Direction
	}{
		{"LONG", DirectionLong},
		{"long", DirectionLong},
		{" buy ", DirectionLong},
		{"SHORT", DirectionShort},
		{"sell", DirectionShort},
		{"FLAT", DirectionFlat},
		{"", DirectionFlat},
		{"garbage", DirectionFlat},
	}
	for _, tc := range cases {
		if got := ParseDirection(tc.in); got != tc.want {
			t.Errorf("ParseDirection(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestDirectionSignAndOpposes(t *testing.T) {
	if DirectionLong.Sign() != 1 || DirectionShort.Sign() != -1 || DirectionFlat.Sign() != 0 {
		t.Errorf("unexpected direction signs")
	}

	if !DirectionLong.Opposes(DirectionShort) {
		t.Errorf("long should oppose short")
	}
	if DirectionLong.Opposes(DirectionLong) {
		t.Errorf("a direction does not oppose itself")
	}
	if DirectionFlat.Opposes(DirectionLong) || DirectionLong.Opposes(DirectionFlat) {
		t.Errorf("flat opposes nothing")
	}
}

func TestFrame_CleansBadValues(t *testing.T) {
	snap := Snapshot{Frames: map[Timeframe]FrameFeatures{
		TimeframeH1: {Trend: math.NaN(), Momentum: 5, RSI: -10},
	}}

	frame := snap.Frame(TimeframeH1)
	if frame.Trend != 0.5 {
		t.Errorf("NaN trend should fall back to 0.5, got %.2f", frame.Trend)
	}
	if frame.Momentum != 1 {
		t.Errorf("momentum should clamp to 1, got %.2f", frame.Momentum)
	}
	if frame.RSI != 0 {
		t.Errorf("RSI should clamp to 0, got %.2f", frame.RSI)
	}

	if got := snap.Frame(TimeframeD1); got != NeutralFrame() {
		t.Errorf("missing frame should be neutral, got %+v", got)
	}
}

func TestStructureDistances(t *testing.T) {
	snap := Snapshot{SupportDistance: 3, ResistanceDistance: 7}

	if got := snap.StructureDistance(DirectionLong); got != 7 {
		t.Errorf("longs target resistance, got %.1f", got)
	}
	if got := snap.StructureDistance(DirectionShort); got != 3 {
		t.Errorf("shorts target support, got %.1f", got)
	}
	if got := snap.SupportingDistance(DirectionLong); got != 3 {
		t.Errorf("longs lean on support, got %.1f", got)
	}
	if got := snap.SupportingDistance(DirectionShort); got != 7 {
		t.Errorf("shorts lean on resistance, got %.1f", got)
	}
	if snap.StructureDistance(DirectionFlat) != 0 || snap.SupportingDistance(DirectionFlat) != 0 {
		t.Errorf("flat has no structure reference")
	}
}
