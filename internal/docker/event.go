package docker

import (
	"github.com/docker/docker/api/types/events"
	"github.com/rs/zerolog"
)

// EventKind is the closed vocabulary of container lifecycle actions this
// system understands. It mirrors the action strings documented for
// `docker events`; anything outside this set is dropped by the
// classifier, never mapped to a default.
type EventKind string

const (
	EventAttach       EventKind = "attach"
	EventCommit       EventKind = "commit"
	EventCopy         EventKind = "copy"
	EventCreate       EventKind = "create"
	EventDestroy      EventKind = "destroy"
	EventDetach       EventKind = "detach"
	EventDie          EventKind = "die"
	EventExecCreate   EventKind = "exec_create"
	EventExecDetach   EventKind = "exec_detach"
	EventExecDie      EventKind = "exec_die"
	EventExecStart    EventKind = "exec_start"
	EventExport       EventKind = "export"
	EventHealthStatus EventKind = "health_status"
	EventKill         EventKind = "kill"
	EventOom          EventKind = "oom"
	EventPause        EventKind = "pause"
	EventRename       EventKind = "rename"
	EventResize       EventKind = "resize"
	EventRestart      EventKind = "restart"
	EventStart        EventKind = "start"
	EventStop         EventKind = "stop"
	EventTop          EventKind = "top"
	EventUnpause      EventKind = "unpause"
	EventUpdate       EventKind = "update"
)

var eventKinds = map[string]EventKind{
	"attach":        EventAttach,
	"commit":        EventCommit,
	"copy":          EventCopy,
	"create":        EventCreate,
	"destroy":       EventDestroy,
	"detach":        EventDetach,
	"die":           EventDie,
	"exec_create":   EventExecCreate,
	"exec_detach":   EventExecDetach,
	"exec_die":      EventExecDie,
	"exec_start":    EventExecStart,
	"export":        EventExport,
	"health_status": EventHealthStatus,
	"kill":          EventKill,
	"oom":           EventOom,
	"pause":         EventPause,
	"rename":        EventRename,
	"resize":        EventResize,
	"restart":       EventRestart,
	"start":         EventStart,
	"stop":          EventStop,
	"top":           EventTop,
	"unpause":       EventUnpause,
	"update":        EventUpdate,
}

// ParseEventKind maps a raw action string to its kind. The match is
// exact and case-sensitive; ok is false for anything unknown.
func ParseEventKind(action string) (EventKind, bool) {
	kind, ok := eventKinds[action]
	return kind, ok
}

// ContainerEvent is one classified lifecycle event for a named
// workload container.
type ContainerEvent struct {
	Kind EventKind
	Name string
}

// ClassifyEvent converts a raw runtime event into a ContainerEvent.
// A message missing its action, actor, or actor name attribute does not
// classify, and neither does an action outside the known vocabulary;
// both return ok=false and are only logged.
func ClassifyEvent(msg events.Message, logger zerolog.Logger) (ContainerEvent, bool) {
	action := string(msg.Action)
	if action == "" {
		return ContainerEvent{}, false
	}
	if msg.Actor.Attributes == nil {
		return ContainerEvent{}, false
	}
	name, ok := msg.Actor.Attributes["name"]
	if !ok {
		return ContainerEvent{}, false
	}

	kind, ok := ParseEventKind(action)
	if !ok {
		logger.Info().Str("action", action).Msg("Unhandled container action")
		return ContainerEvent{}, false
	}

	return ContainerEvent{Kind: kind, Name: name}, true
}
