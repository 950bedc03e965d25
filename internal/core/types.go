package core

import (
	"errors"
	"math"
	"time"
)

const (
	// MaxPrinters bounds the printer table; a printer id is also its bit in
	// a job's eligibility set.
	MaxPrinters = 32

	DefaultMaxJobs         = 64
	DefaultMaxTypes        = 32
	DefaultRetentionWindow = 10 * time.Second

	// abortStatusResource is reported when a job cannot open its file or
	// printer transport.
	abortStatusResource = 1
	// abortStatusCancelled is reported when a job is cancelled before it
	// ever ran.
	abortStatusCancelled = 0
)

var (
	ErrDuplicateName     = errors.New("name already defined")
	ErrCapacity          = errors.New("capacity exhausted")
	ErrUnknownType       = errors.New("unknown file type")
	ErrUnknownPrinter    = errors.New("unknown printer")
	ErrUnknownJob        = errors.New("unknown job")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrPrinterBusy       = errors.New("printer is busy")
	ErrBadArguments      = errors.New("malformed arguments")

	ErrSourceUnavailable    = errors.New("source file unavailable")
	ErrTransportUnavailable = errors.New("printer transport unavailable")
	ErrSpawn                = errors.New("cannot spawn pipeline supervisor")
)

type PrinterStatus string

const (
	PrinterStatusDisabled PrinterStatus = "disabled"
	PrinterStatusIdle     PrinterStatus = "idle"
	PrinterStatusBusy     PrinterStatus = "busy"
)

type JobStatus string

const (
	JobStatusCreated  JobStatus = "created"
	JobStatusRunning  JobStatus = "running"
	JobStatusPaused   JobStatus = "paused"
	JobStatusFinished JobStatus = "finished"
	JobStatusAborted  JobStatus = "aborted"
	JobStatusDeleted  JobStatus = "deleted"
)

// Terminal reports whether the job has stopped for good but is still
// retained for inspection.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusAborted
}

// Active reports whether the job owns a process group.
func (s JobStatus) Active() bool {
	return s == JobStatusRunning || s == JobStatusPaused
}

// Eligibility is the set of printer ids a job may run on.
type Eligibility uint32

const AllPrinters Eligibility = math.MaxUint32

func (e Eligibility) Has(printerID int) bool {
	if printerID < 0 || printerID >= MaxPrinters {
		return false
	}
	return e&(1<<uint(printerID)) != 0
}

func (e Eligibility) With(printerID int) Eligibility {
	return e | 1<<uint(printerID)
}

type Printer struct {
	ID           int
	Name         string
	Type         string
	Status       PrinterStatus
	ProcessGroup int
}

type Job struct {
	ID           int
	FileName     string
	FileType     string
	Eligible     Eligibility
	Status       JobStatus
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	Printer      *Printer
	ProcessGroup int
}

// PrinterName returns the bound printer's name, or "" when unbound.
func (j *Job) PrinterName() string {
	if j.Printer == nil {
		return ""
	}
	return j.Printer.Name
}
