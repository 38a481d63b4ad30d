package logwatch

import (
	"github.com/fsnotify/fsnotify"
)

// EventKind classifies a filesystem notification for the watched file.
// The set is closed; notifications that do not map to one of these
// kinds are discarded before dispatch.
type EventKind int

const (
	EventModified EventKind = iota
	EventCreated
	EventDeleted
	EventClosed
	EventMoved
)

func (k EventKind) String() string {
	switch k {
	case EventModified:
		return "modified"
	case EventCreated:
		return "created"
	case EventDeleted:
		return "deleted"
	case EventClosed:
		return "closed"
	case EventMoved:
		return "moved"
	}

	return "unknown"
}

// classify maps an fsnotify operation to an event kind. Chmod has no
// handler slot and is dropped. fsnotify does not surface close-write,
// so classify never produces EventClosed; the handler slot stays for
// dispatchers that can observe it.
func classify(op fsnotify.Op) (EventKind, bool) {
	switch {
	case op.Has(fsnotify.Write):
		return EventModified, true
	case op.Has(fsnotify.Create):
		return EventCreated, true
	case op.Has(fsnotify.Remove):
		return EventDeleted, true
	case op.Has(fsnotify.Rename):
		return EventMoved, true
	}

	return 0, false
}

// Handler receives classified notifications for the watched file, one
// method per event kind. The boolean result is the success signal that
// counts toward the session's stop threshold. An error aborts the
// session and propagates out of Wait.
type Handler interface {
	OnModified(path string) (bool, error)
	OnCreated(path string) (bool, error)
	OnDeleted(path string) (bool, error)
	OnClosed(path string) (bool, error)
	OnMoved(path string) (bool, error)
}

// BaseHandler implements every Handler method as "successful, do
// nothing", so a bare session stops on the first notification of any
// kind and concrete handlers embed it and override only what they
// care about.
type BaseHandler struct{}

func (BaseHandler) OnModified(string) (bool, error) { return true, nil }
func (BaseHandler) OnCreated(string) (bool, error)  { return true, nil }
func (BaseHandler) OnDeleted(string) (bool, error)  { return true, nil }
func (BaseHandler) OnClosed(string) (bool, error)   { return true, nil }
func (BaseHandler) OnMoved(string) (bool, error)    { return true, nil }
