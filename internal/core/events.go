package core

import (
	"time"
)

type EventKind string

const (
	EventTypeDefined       EventKind = "type_defined"
	EventConversionDefined EventKind = "conversion_defined"
	EventPrinterDefined    EventKind = "printer_defined"
	EventPrinterStatus     EventKind = "printer_status_changed"
	EventJobCreated        EventKind = "job_created"
	EventJobStatus         EventKind = "job_status_changed"
	EventJobStarted        EventKind = "job_started"
	EventJobFinished       EventKind = "job_finished"
	EventJobAborted        EventKind = "job_aborted"
	EventJobDeleted        EventKind = "job_deleted"
)

// Event describes one state change. Only the fields relevant to Kind are
// populated.
type Event struct {
	Kind EventKind
	Time time.Time

	TypeName string
	FromType string
	ToType   string

	Printer       string
	PrinterType   string
	PrinterStatus PrinterStatus

	JobID      int
	FileName   string
	FileType   string
	JobStatus  JobStatus
	Group      int
	Commands   []string
	ExitStatus int
}

// Observer receives events synchronously, in the order they occur.
// Implementations must not call back into the spooler.
type Observer interface {
	Notify(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

// Observers fans an event out to every member in order.
type Observers []Observer

func (o Observers) Notify(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Notify(Event) {}
