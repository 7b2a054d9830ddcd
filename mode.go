package colorfade

import "fmt"

// Mode selects how a fade session renders.
type Mode int

const (
	// WarmUp renders the captured screen while the display powers on.
	// Prepare renders DejankFrames frames at full level before returning.
	WarmUp Mode = iota + 1

	// CoolDown renders the captured screen while the display powers off.
	CoolDown

	// Fade fades an opaque black color layer in or out. No GPU work is
	// done in this mode.
	Fade
)

// DejankFrames is the number of throw-away frames WarmUp renders during
// Prepare so driver and pipeline warm-up does not land on the first
// visible frame.
const DejankFrames = 3

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case WarmUp:
		return "WarmUp"
	case CoolDown:
		return "CoolDown"
	case Fade:
		return "Fade"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// rendered reports whether the mode draws through the GPU.
func (m Mode) rendered() bool { return m == WarmUp || m == CoolDown }

func (m Mode) valid() bool { return m >= WarmUp && m <= Fade }
