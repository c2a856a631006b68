package posture

import (
	"errors"
	"fmt"
)

// ErrUnknownMode is returned when a mode string is not one of squat or desk.
var ErrUnknownMode = errors.New("mode must be squat or desk")

// Mode selects the rule set and the issue/recommendation vocabulary.
type Mode int

const (
	ModeSquat Mode = iota + 1
	ModeDesk
)

// ParseMode maps the wire value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "squat":
		return ModeSquat, nil
	case "desk":
		return ModeDesk, nil
	}
	return 0, fmt.Errorf("%w: got %q", ErrUnknownMode, s)
}

func (m Mode) String() string {
	switch m {
	case ModeSquat:
		return "squat"
	case ModeDesk:
		return "desk"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeSquat && m != ModeDesk {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	parsed, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
