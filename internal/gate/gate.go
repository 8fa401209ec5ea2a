// Package gate decides whether a scheduled tick falls inside operating hours.
package gate

import (
	"fmt"
	"time"
)

// WIB is Western Indonesia Time. It has no daylight saving, so a fixed zone
// avoids depending on the tz database of the runner image.
var WIB = time.FixedZone("WIB", 7*60*60)

// Window is a daily range of hours [StartHour, EndHour) in Location. A start
// after the end wraps past midnight; equal hours mean always open.
type Window struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Default returns the 06:00 to 22:00 WIB window.
func Default() Window {
	return Window{StartHour: 6, EndHour: 22, Location: WIB}
}

// Open reports whether t is inside the window.
func (w Window) Open(t time.Time) bool {
	loc := w.Location
	if loc == nil {
		loc = WIB
	}
	h := t.In(loc).Hour()

	switch {
	case w.StartHour == w.EndHour%24:
		return true
	case w.StartHour < w.EndHour:
		return h >= w.StartHour && h < w.EndHour
	default:
		return h >= w.StartHour || h < w.EndHour
	}
}

func (w Window) String() string {
	loc := w.Location
	if loc == nil {
		loc = WIB
	}
	return fmt.Sprintf("%02d:00-%02d:00 %s", w.StartHour, w.EndHour, loc)
}
