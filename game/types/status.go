package types

import "errors"

// Domain errors. Services wrap these with context; StatusOf recovers the
// status code for the reply.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
)

// Status is the result code every RPC reply carries.
type Status uint8

const (
	StatusOK Status = iota
	StatusNotFound
	StatusInvalidArgument
)

var statusEnum = Enum{Kind: "status", Names: []string{"ok", "notFound", "invalidArgument"}}

func (s Status) String() string                { return statusEnum.Name(uint8(s)) }
func (s Status) MarshalText() ([]byte, error) { return statusEnum.Text(uint8(s)) }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := statusEnum.Parse(b)
	if err != nil {
		return err
	}
	*s = Status(v)
	return nil
}

// StatusOf maps a domain error to its status. Unknown errors map to
// invalidArgument.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrNotFound):
		return StatusNotFound
	default:
		return StatusInvalidArgument
	}
}
