package colorfade

import "errors"

// Errors logged when a Controller operation returns false.
var (
	// ErrInvalidMode is logged when Prepare receives an unknown Mode.
	ErrInvalidMode = errors.New("colorfade: invalid mode")

	// ErrNoDisplay is logged when the display provider does not know the
	// configured display or reports an empty geometry.
	ErrNoDisplay = errors.New("colorfade: display not found")

	// ErrNotPrepared is logged when Draw is called outside a session.
	ErrNotPrepared = errors.New("colorfade: not prepared")

	// ErrClosed is logged when a closed Controller is used.
	ErrClosed = errors.New("colorfade: controller closed")
)
