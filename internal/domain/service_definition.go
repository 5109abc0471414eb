package domain

import "time"

// Events a preservation service may be applicable to.
const (
	EventRegister   = "register"
	EventPreserve   = "preserve"
	EventDeregister = "deregister"
)

// ServiceDefinition - configuration of one preservation service
type ServiceDefinition struct {
	Name       string
	WorkScript string
	// Delay postpones the first run relative to registration. Zero means no delay.
	Delay time.Duration
	// Frequency is the interval between subsequent runs. Zero means the service runs once.
	Frequency  time.Duration
	Events     []string
	Properties map[string]any
}

// AppliesTo reports whether the service runs for the event. Services without an explicit
// event list only take part in preservation.
func (d ServiceDefinition) AppliesTo(event string) bool {
	if len(d.Events) == 0 {
		return event == EventPreserve
	}
	for _, e := range d.Events {
		if e == event {
			return true
		}
	}
	return false
}
