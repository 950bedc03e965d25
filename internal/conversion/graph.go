// Package conversion holds the file-type catalogue and the conversion graph
// between types. Each edge is an external command that reads one type on
// stdin and writes another on stdout.
package conversion

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrTypeExists       = errors.New("file type already defined")
	ErrTypeUnknown      = errors.New("file type not defined")
	ErrConversionExists = errors.New("conversion already defined")
	ErrEmptyCommand     = errors.New("conversion command is empty")
)

// Step is a single conversion stage.
type Step struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	Command []string `json:"command"`
}

// Name returns the executable of the step.
func (s Step) Name() string {
	if len(s.Command) == 0 {
		return ""
	}
	return s.Command[0]
}

type edgeKey struct {
	from string
	to   string
}

// Graph is not safe for concurrent use; the spooler owns it from a single
// goroutine.
type Graph struct {
	types []string
	known map[string]bool
	edges map[string][]Step
	index map[edgeKey]bool
}

func NewGraph() *Graph {
	return &Graph{
		known: make(map[string]bool),
		edges: make(map[string][]Step),
		index: make(map[edgeKey]bool),
	}
}

func (g *Graph) DefineType(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrTypeUnknown)
	}
	if g.known[name] {
		return fmt.Errorf("%w: %s", ErrTypeExists, name)
	}
	g.known[name] = true
	g.types = append(g.types, name)
	return nil
}

func (g *Graph) LookupType(name string) bool {
	return g.known[name]
}

// Types returns the defined types in definition order.
func (g *Graph) Types() []string {
	out := make([]string, len(g.types))
	copy(out, g.types)
	return out
}

func (g *Graph) DefineConversion(from, to string, command []string) (Step, error) {
	if !g.known[from] {
		return Step{}, fmt.Errorf("%w: %s", ErrTypeUnknown, from)
	}
	if !g.known[to] {
		return Step{}, fmt.Errorf("%w: %s", ErrTypeUnknown, to)
	}
	if len(command) == 0 || command[0] == "" {
		return Step{}, ErrEmptyCommand
	}
	key := edgeKey{from: from, to: to}
	if g.index[key] {
		return Step{}, fmt.Errorf("%w: %s -> %s", ErrConversionExists, from, to)
	}

	step := Step{From: from, To: to, Command: append([]string(nil), command...)}
	g.edges[from] = append(g.edges[from], step)
	g.index[key] = true
	return step, nil
}

// FindPath returns the shortest chain of steps converting from into to.
// An empty, non-nil slice means the types are identical. Ties are broken by
// conversion definition order.
func (g *Graph) FindPath(from, to string) ([]Step, bool) {
	if !g.known[from] || !g.known[to] {
		return nil, false
	}
	if from == to {
		return []Step{}, true
	}

	prev := map[string]Step{}
	visited := map[string]bool{from: true}
	queue := []string{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, step := range g.edges[cur] {
			if visited[step.To] {
				continue
			}
			visited[step.To] = true
			prev[step.To] = step
			if step.To == to {
				return unwind(prev, from, to), true
			}
			queue = append(queue, step.To)
		}
	}

	return nil, false
}

func unwind(prev map[string]Step, from, to string) []Step {
	var path []Step
	for cur := to; cur != from; {
		step := prev[cur]
		path = append(path, step)
		cur = step.From
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// InferType maps a file name to a defined type by its extension. Files
// without a usable extension are sniffed and matched by the detected
// extension instead.
func (g *Graph) InferType(file string) (string, bool) {
	if ext := extension(file); ext != "" {
		if g.known[ext] {
			return ext, true
		}
		return "", false
	}

	mtype, err := mimetype.DetectFile(file)
	if err != nil {
		return "", false
	}
	for m := mtype; m != nil; m = m.Parent() {
		if ext := strings.TrimPrefix(m.Extension(), "."); ext != "" && g.known[ext] {
			return ext, true
		}
	}
	return "", false
}

func extension(file string) string {
	base := filepath.Base(file)
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 || idx == len(base)-1 {
		return ""
	}
	return base[idx+1:]
}
