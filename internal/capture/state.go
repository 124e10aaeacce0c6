package capture

import (
	"errors"
	"fmt"
)

// Expected termination causes. Each ends the session through the normal
// drain and assembly path.
var (
	ErrTimeOver   = errors.New("time limit reached")
	ErrFreeSpace  = errors.New("free disk space below floor")
	ErrUserCancel = errors.New("cancelled by user")
)

var (
	errRunLimit = fmt.Errorf("run limit: %w", ErrTimeOver)
	errEndTime  = fmt.Errorf("end time: %w", ErrTimeOver)
)

// StopReason records why a session stopped
type StopReason string

const (
	StopNone        StopReason = ""
	StopUser        StopReason = "user"
	StopTimeLimit   StopReason = "time_limit"
	StopEndTime     StopReason = "end_time"
	StopDiskFull    StopReason = "disk_full"
	StopSourceError StopReason = "source_error"
)

// ReasonFor classifies the error that ended the sampling loop
func ReasonFor(err error) StopReason {
	switch {
	case err == nil:
		return StopNone
	case errors.Is(err, ErrUserCancel):
		return StopUser
	case errors.Is(err, errEndTime):
		return StopEndTime
	case errors.Is(err, ErrTimeOver):
		return StopTimeLimit
	case errors.Is(err, ErrFreeSpace):
		return StopDiskFull
	default:
		return StopSourceError
	}
}

// Expected reports whether r is a normal end of capture
func (r StopReason) Expected() bool {
	return r != StopSourceError
}

// State is a stage of the pump lifecycle
type State int

const (
	StateWaitingStart State = iota
	StateRunning
	StateStoppingUser
	StateStoppingTimeLimit
	StateStoppingDiskFull
	StateStoppingError
	StateDraining
	StateDone
)

var stateNames = map[State]string{
	StateWaitingStart:      "WAITING_START",
	StateRunning:           "RUNNING",
	StateStoppingUser:      "STOPPING_USER",
	StateStoppingTimeLimit: "STOPPING_TIME_LIMIT",
	StateStoppingDiskFull:  "STOPPING_DISK_FULL",
	StateStoppingError:     "STOPPING_ERROR",
	StateDraining:          "DRAINING",
	StateDone:              "DONE",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func stoppingState(r StopReason) State {
	switch r {
	case StopUser:
		return StateStoppingUser
	case StopTimeLimit, StopEndTime:
		return StateStoppingTimeLimit
	case StopDiskFull:
		return StateStoppingDiskFull
	default:
		return StateStoppingError
	}
}
