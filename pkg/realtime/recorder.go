package realtime

import "time"

// Recorder receives session metrics. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	SessionStarted()
	SessionEnded(reason string)
	Event(event string)
	Frame(direction, frameType string)
	Error(kind string)
	ObserveStart(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()            {}
func (nopRecorder) SessionEnded(string)        {}
func (nopRecorder) Event(string)               {}
func (nopRecorder) Frame(string, string)       {}
func (nopRecorder) Error(string)               {}
func (nopRecorder) ObserveStart(time.Duration) {}
