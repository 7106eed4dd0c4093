package history

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ParseError reports a malformed history document. A document with any
// malformed entry is rejected as a whole.
type ParseError struct {
	Index int // entry index, or -1 for the document itself
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed history: %v", e.Err)
	}
	return fmt.Sprintf("malformed history entry %d: %v", e.Index, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// wireTransition mirrors Transition with pointer fields so that missing
// keys can be told apart from zero values.
type wireTransition struct {
	OldState     *int   `json:"oldState" validate:"required,oneof=0 1"`
	NewState     *int   `json:"newState" validate:"required,oneof=0 1"`
	WallTimeSecs *int64 `json:"wallTimeSecs" validate:"required,gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses a history document. Entries must be well formed, must
// change state, and must not go back in time.
func Decode(data []byte) ([]Transition, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ParseError{Index: -1, Err: fmt.Errorf("not a JSON array")}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}

	transitions := make([]Transition, 0, len(raw))
	for i, entry := range raw {
		var w wireTransition
		if err := json.Unmarshal(entry, &w); err != nil {
			return nil, &ParseError{Index: i, Err: err}
		}
		if err := validate.Struct(w); err != nil {
			return nil, &ParseError{Index: i, Err: err}
		}

		t := Transition{
			OldState:     UserState(*w.OldState),
			NewState:     UserState(*w.NewState),
			WallTimeSecs: *w.WallTimeSecs,
		}
		if t.OldState == t.NewState {
			return nil, &ParseError{Index: i, Err: fmt.Errorf("oldState equals newState (%s)", t.NewState)}
		}
		if n := len(transitions); n > 0 && t.WallTimeSecs < transitions[n-1].WallTimeSecs {
			return nil, &ParseError{Index: i, Err: fmt.Errorf("wallTimeSecs %d precedes previous entry %d",
				t.WallTimeSecs, transitions[n-1].WallTimeSecs)}
		}
		transitions = append(transitions, t)
	}

	return transitions, nil
}

// Encode serializes transitions as a JSON array.
func Encode(transitions []Transition) ([]byte, error) {
	if transitions == nil {
		transitions = []Transition{}
	}
	data, err := json.Marshal(transitions)
	if err != nil {
		return nil, fmt.Errorf("marshal history: %w", err)
	}
	return data, nil
}
