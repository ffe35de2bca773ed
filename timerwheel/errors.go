package timerwheel

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// TooFarAheadError is returned by Insert when an entry's time point falls
// beyond the wheel's total span. It carries the full diagnostic state the
// reference design calls for: the entry's time point alongside the wheel's
// baseTime, poppedTime, offset and resolution at the moment of the failed
// insert.
type TooFarAheadError[C constraints.Integer] struct {
	TimePoint        C
	BaseTime         C
	PoppedTime       C
	Offset           uint64
	ResolutionCycles C
}

func (e *TooFarAheadError[C]) Error() string {
	return fmt.Sprintf(
		"timerwheel: entry at time_point=%v is too far ahead (baseTime=%v poppedTime=%v offset=%d resolutionCycles=%v)",
		e.TimePoint, e.BaseTime, e.PoppedTime, e.Offset, e.ResolutionCycles,
	)
}
