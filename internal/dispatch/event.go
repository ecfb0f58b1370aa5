// Package dispatch implements the Event Dispatcher and Refresh Scheduler
// from spec.md §4.5–§4.6: translating archive change callbacks into a
// filtered, module-routed processing cycle, and periodically re-crawling
// the Module Registry without racing an in-flight callback.
package dispatch

import "github.com/oriongate/dicomdispatch/internal/restree"

// Event is one archive change callback the dispatcher must classify and
// act on. ResourceID is the patient/study/series id the event fired on;
// Level is its granularity, absent (zero value) for the two lifecycle
// kinds which carry no resource. CorrelationID identifies one dispatch
// cycle across every log line and the /events websocket feed it
// produces; Actor.Submit assigns one if the caller left it blank.
type Event struct {
	Kind          EventKind
	Level         restree.Level
	ResourceID    string
	CorrelationID string
}

// EventKind enumerates the change kinds spec.md §4.6 consumes: the three
// stable-resource events plus lifecycle start and stop. Any other archive
// event is expected to never reach this package.
type EventKind string

const (
	EventStableSeries     EventKind = "stable_series"
	EventStableStudy      EventKind = "stable_study"
	EventStablePatient    EventKind = "stable_patient"
	EventLifecycleStart   EventKind = "lifecycle_started"
	EventLifecycleStopped EventKind = "lifecycle_stopped"
)

// StableEvent builds the Event for a stable-{series,study,patient}
// callback, setting Level to match Kind.
func StableEvent(kind EventKind, resourceID string) Event {
	var level restree.Level
	switch kind {
	case EventStableSeries:
		level = restree.LevelSeries
	case EventStableStudy:
		level = restree.LevelStudy
	case EventStablePatient:
		level = restree.LevelPatient
	}
	return Event{Kind: kind, Level: level, ResourceID: resourceID}
}
