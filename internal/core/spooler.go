package core

import (
	"fmt"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/presi/internal/conversion"
)

// Graph is the file-type catalogue and conversion path finder.
type Graph interface {
	DefineType(name string) error
	LookupType(name string) bool
	DefineConversion(from, to string, command []string) (conversion.Step, error)
	FindPath(from, to string) ([]conversion.Step, bool)
	InferType(file string) (string, bool)
}

// Launcher runs a dispatched job.
//
// Passthrough copies the job file to the printer synchronously. It returns
// an error wrapping ErrSourceUnavailable or ErrTransportUnavailable when
// nothing could be opened; any other error means the copy started and
// failed.
//
// Launch starts a supervisor process as the leader of a new process group
// and returns the group id. Errors wrapping ErrSpawn leave the job
// untouched; other errors abort it.
type Launcher interface {
	Passthrough(job *Job, printer *Printer) error
	Launch(job *Job, printer *Printer, steps []conversion.Step) (int, error)
}

// Signaler delivers a signal to every process in a group.
type Signaler interface {
	SignalGroup(pgid int, sig syscall.Signal) error
}

type Options struct {
	Graph    Graph
	Launcher Launcher
	Signaler Signaler
	Waiter   Waiter
	Observer Observer
	Logger   *zap.Logger
	Now      func() time.Time

	MaxJobs         int
	MaxTypes        int
	RetentionWindow time.Duration
}

// Spooler owns every printer and job. It is not safe for concurrent use:
// all calls must come from the goroutine running the Loop.
type Spooler struct {
	graph    Graph
	launcher Launcher
	signaler Signaler
	waiter   Waiter
	observer Observer
	logger   *zap.Logger
	now      func() time.Time

	maxJobs   int
	maxTypes  int
	retention time.Duration

	types     []string
	printers  []*Printer
	jobs      []*Job
	nextJobID int
	groups    map[int]*Job
}

func New(opts Options) *Spooler {
	if opts.Graph == nil {
		opts.Graph = conversion.NewGraph()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = DefaultMaxJobs
	}
	if opts.MaxTypes <= 0 {
		opts.MaxTypes = DefaultMaxTypes
	}
	if opts.RetentionWindow <= 0 {
		opts.RetentionWindow = DefaultRetentionWindow
	}

	return &Spooler{
		graph:     opts.Graph,
		launcher:  opts.Launcher,
		signaler:  opts.Signaler,
		waiter:    opts.Waiter,
		observer:  opts.Observer,
		logger:    opts.Logger.With(zap.String("component", "spooler")),
		now:       opts.Now,
		maxJobs:   opts.MaxJobs,
		maxTypes:  opts.MaxTypes,
		retention: opts.RetentionWindow,
		jobs:      make([]*Job, 0, opts.MaxJobs),
		groups:    make(map[int]*Job),
	}
}

func (s *Spooler) notify(e Event) {
	e.Time = s.now()
	s.observer.Notify(e)
}

func (s *Spooler) AddType(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty type name", ErrBadArguments)
	}
	if s.graph.LookupType(name) {
		return fmt.Errorf("%w: type %s", ErrDuplicateName, name)
	}
	if len(s.types) >= s.maxTypes {
		return fmt.Errorf("%w: %d types", ErrCapacity, s.maxTypes)
	}
	if err := s.graph.DefineType(name); err != nil {
		return fmt.Errorf("failed to define type %s: %w", name, err)
	}
	s.types = append(s.types, name)

	s.notify(Event{Kind: EventTypeDefined, TypeName: name})
	return nil
}

func (s *Spooler) LookupType(name string) bool {
	return s.graph.LookupType(name)
}

// Types returns the defined type names in definition order.
func (s *Spooler) Types() []string {
	out := make([]string, len(s.types))
	copy(out, s.types)
	return out
}

func (s *Spooler) DefineConversion(from, to string, command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("%w: conversion needs a command", ErrBadArguments)
	}
	if !s.graph.LookupType(from) {
		return fmt.Errorf("%w: %s", ErrUnknownType, from)
	}
	if !s.graph.LookupType(to) {
		return fmt.Errorf("%w: %s", ErrUnknownType, to)
	}
	step, err := s.graph.DefineConversion(from, to, command)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArguments, err)
	}

	s.notify(Event{Kind: EventConversionDefined, FromType: step.From, ToType: step.To, Commands: step.Command})
	return nil
}

// AddPrinter registers a disabled printer and returns its id.
func (s *Spooler) AddPrinter(name, fileType string) (int, error) {
	if name == "" || fileType == "" {
		return -1, fmt.Errorf("%w: printer needs a name and a type", ErrBadArguments)
	}
	if s.LookupPrinter(name) != nil {
		return -1, fmt.Errorf("%w: printer %s", ErrDuplicateName, name)
	}
	if !s.graph.LookupType(fileType) {
		return -1, fmt.Errorf("%w: %s", ErrUnknownType, fileType)
	}
	if len(s.printers) >= MaxPrinters {
		return -1, fmt.Errorf("%w: %d printers", ErrCapacity, MaxPrinters)
	}

	p := &Printer{
		ID:     len(s.printers),
		Name:   name,
		Type:   fileType,
		Status: PrinterStatusDisabled,
	}
	s.printers = append(s.printers, p)

	s.notify(Event{Kind: EventPrinterDefined, Printer: p.Name, PrinterType: p.Type})
	return p.ID, nil
}

func (s *Spooler) LookupPrinter(name string) *Printer {
	for _, p := range s.printers {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Printers returns a copy of every printer in id order.
func (s *Spooler) Printers() []Printer {
	out := make([]Printer, 0, len(s.printers))
	for _, p := range s.printers {
		out = append(out, *p)
	}
	return out
}

// AddJob registers a job in the Created state and returns its id. Ids are
// never reused even when a deleted job's slot is.
func (s *Spooler) AddJob(file, fileType string, eligible Eligibility) (int, error) {
	if file == "" {
		return -1, fmt.Errorf("%w: empty file name", ErrBadArguments)
	}
	if !s.graph.LookupType(fileType) {
		return -1, fmt.Errorf("%w: %s", ErrUnknownType, fileType)
	}
	slot := s.freeSlot()
	if slot < 0 {
		return -1, fmt.Errorf("%w: %d jobs", ErrCapacity, s.maxJobs)
	}

	j := &Job{
		ID:        s.nextJobID,
		FileName:  file,
		FileType:  fileType,
		Eligible:  eligible,
		Status:    JobStatusCreated,
		CreatedAt: s.now(),
	}
	s.nextJobID++

	if slot == len(s.jobs) {
		s.jobs = append(s.jobs, j)
	} else {
		s.jobs[slot] = j
	}

	s.notify(Event{Kind: EventJobCreated, JobID: j.ID, FileName: j.FileName, FileType: j.FileType})
	return j.ID, nil
}

func (s *Spooler) freeSlot() int {
	for i, j := range s.jobs {
		if j.Status == JobStatusDeleted {
			return i
		}
	}
	if len(s.jobs) < s.maxJobs {
		return len(s.jobs)
	}
	return -1
}

// LookupJob finds a job that has not been deleted.
func (s *Spooler) LookupJob(id int) *Job {
	for _, j := range s.jobs {
		if j.ID == id && j.Status != JobStatusDeleted {
			return j
		}
	}
	return nil
}

// Jobs returns a copy of every non-deleted job in ascending id order.
func (s *Spooler) Jobs() []Job {
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Status == JobStatusDeleted {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// SubmitJob infers the file type, builds the eligibility set from the
// named printers (all printers when none are named), registers the job and
// attempts a dispatch.
func (s *Spooler) SubmitJob(file string, printers ...string) (int, error) {
	if file == "" {
		return -1, fmt.Errorf("%w: print needs a file", ErrBadArguments)
	}
	fileType, ok := s.graph.InferType(file)
	if !ok {
		return -1, fmt.Errorf("%w: cannot infer type of %s", ErrUnknownType, file)
	}

	eligible, err := s.eligibility(printers)
	if err != nil {
		return -1, err
	}

	id, err := s.AddJob(file, fileType, eligible)
	if err != nil {
		return -1, err
	}

	s.TryDispatch()
	return id, nil
}

func (s *Spooler) eligibility(names []string) (Eligibility, error) {
	if len(names) == 0 {
		return AllPrinters, nil
	}
	var e Eligibility
	for _, name := range names {
		p := s.LookupPrinter(name)
		if p == nil {
			return 0, fmt.Errorf("%w: %s", ErrUnknownPrinter, name)
		}
		e = e.With(p.ID)
	}
	return e, nil
}
