package history

import (
	"errors"
	"testing"
)

func TestDecodeValid(t *testing.T) {
	data := []byte(`[
		{"oldState": 0, "newState": 1, "wallTimeSecs": 100},
		{"oldState": 1, "newState": 0, "wallTimeSecs": 100, "extra": true},
		{"oldState": 0, "newState": 1, "wallTimeSecs": 250}
	]`)

	transitions, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(transitions) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(transitions))
	}
	want := Transition{OldState: UserStateInactive, NewState: UserStateActive, WallTimeSecs: 250}
	if transitions[2] != want {
		t.Errorf("expected %+v, got %+v", want, transitions[2])
	}
}

func TestDecodeEmptyArray(t *testing.T) {
	transitions, err := Decode([]byte(" [] "))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(transitions) != 0 {
		t.Fatalf("expected no transitions, got %d", len(transitions))
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantIndex int
	}{
		{"empty document", ``, -1},
		{"object", `{"oldState": 0}`, -1},
		{"null", `null`, -1},
		{"truncated", `[{"oldState": 0, "newState": 1, "wallTimeSecs": 1}`, -1},
		{"entry not object", `[1]`, 0},
		{"missing oldState", `[{"newState": 1, "wallTimeSecs": 1}]`, 0},
		{"missing newState", `[{"oldState": 0, "wallTimeSecs": 1}]`, 0},
		{"missing wallTimeSecs", `[{"oldState": 0, "newState": 1}]`, 0},
		{"null field", `[{"oldState": null, "newState": 1, "wallTimeSecs": 1}]`, 0},
		{"string state", `[{"oldState": "0", "newState": 1, "wallTimeSecs": 1}]`, 0},
		{"state out of range", `[{"oldState": 0, "newState": 2, "wallTimeSecs": 1}]`, 0},
		{"fractional time", `[{"oldState": 0, "newState": 1, "wallTimeSecs": 1.5}]`, 0},
		{"negative time", `[{"oldState": 0, "newState": 1, "wallTimeSecs": -1}]`, 0},
		{"no state change", `[{"oldState": 1, "newState": 1, "wallTimeSecs": 1}]`, 0},
		{"out of order", `[
			{"oldState": 0, "newState": 1, "wallTimeSecs": 200},
			{"oldState": 1, "newState": 0, "wallTimeSecs": 100}
		]`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transitions, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatalf("expected error, got %+v", transitions)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
			if parseErr.Index != tt.wantIndex {
				t.Errorf("expected index %d, got %d (%v)", tt.wantIndex, parseErr.Index, err)
			}
			if transitions != nil {
				t.Errorf("expected no partial result, got %+v", transitions)
			}
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := []Transition{
		{OldState: UserStateInactive, NewState: UserStateActive, WallTimeSecs: 10},
		{OldState: UserStateActive, NewState: UserStateInactive, WallTimeSecs: 20},
	}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `[{"oldState":0,"newState":1,"wallTimeSecs":10},{"oldState":1,"newState":0,"wallTimeSecs":20}]`
	if string(data) != want {
		t.Fatalf("unexpected encoding:\n got %s\nwant %s", data, want)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestEncodeNil(t *testing.T) {
	data, err := Encode(nil)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("expected [], got %s", data)
	}
}
