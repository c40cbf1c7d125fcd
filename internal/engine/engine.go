package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/texstack/internal/passes"
	"github.com/roach88/texstack/internal/provider"
	"github.com/roach88/texstack/internal/status"
)

var (
	commandPattern = regexp.MustCompile(`\\(input|include|InputIfFileExists|section|label|ref)\{([^}]*)\}`)
	newlabelLine   = regexp.MustCompile(`^\\newlabel\{([^}]*)\}\{([^}]*)\}$`)
)

// Option configures an Engine.
type Option func(*Engine)

// WithFormat makes every pass load the named format first.
func WithFormat(name string) Option {
	return func(e *Engine) { e.format = name }
}

// WithMaxDepth bounds input nesting. Values < 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxDepth = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine is the reference engine. It keeps no state between passes; all
// carry-over goes through the files it writes.
type Engine struct {
	format   string
	maxDepth int
	logger   *slog.Logger
}

// New creates an engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxDepth: DefaultMaxDepth,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome summarises one pass.
type Outcome struct {
	Job        string
	Files      []string
	Labels     int
	Undefined  []string
	OutputSize int
}

// RunPass implements passes.Engine.
func (e *Engine) RunPass(ctx context.Context, pass int, p provider.Provider, sink status.Backend) error {
	_, err := e.Run(ctx, pass, p, sink)
	return err
}

// Run performs one pass and reports what it did.
func (e *Engine) Run(ctx context.Context, pass int, p provider.Provider, sink status.Backend) (*Outcome, error) {
	r := &run{
		ctx:    ctx,
		p:      p,
		sink:   sink,
		quota:  newDepthQuota(e.maxDepth),
		labels: make(map[string]string),
	}

	if e.format != "" {
		if err := r.loadFormat(e.format); err != nil {
			return nil, err
		}
	}

	res := p.InputOpenPrimary(sink)
	switch {
	case res.IsNotAvailable():
		return nil, &Error{Code: ErrCodeNoPrimary, Message: "no provider supplies the primary input"}
	case res.IsError():
		return nil, &Error{Code: ErrCodeIO, Message: "opening the primary input", Err: res.Err()}
	}
	primary := res.Handle()
	job := strings.TrimSuffix(path.Base(primary.Name()), path.Ext(primary.Name()))

	known, err := r.readAux(job + ".aux")
	if err != nil {
		primary.Close()
		return nil, err
	}
	r.known = known

	if err := r.scan(primary); err != nil {
		return nil, err
	}

	if err := r.write(job+".aux", r.aux()); err != nil {
		return nil, err
	}
	if err := r.write(job+".out", r.out.Bytes()); err != nil {
		return nil, err
	}
	out := &Outcome{
		Job:        job,
		Files:      r.files,
		Labels:     len(r.order),
		Undefined:  r.undefined,
		OutputSize: r.out.Len(),
	}
	if err := r.write(job+".log", logText(pass, out)); err != nil {
		return nil, err
	}
	r.stdout(fmt.Sprintf("Output written on %s.out (%d bytes).\n", job, out.OutputSize))

	e.logger.Debug("pass finished", "pass", pass, "job", job,
		"files", len(out.Files), "labels", out.Labels, "undefined", len(out.Undefined))
	return out, nil
}

// run is the state of one pass.
type run struct {
	ctx   context.Context
	p     provider.Provider
	sink  status.Backend
	quota *depthQuota

	known     map[string]string
	labels    map[string]string
	order     []string
	section   int
	files     []string
	undefined []string
	out       bytes.Buffer
}

func (r *run) loadFormat(name string) error {
	res := r.p.InputOpenFormat(name, r.sink)
	switch {
	case res.IsSuccess():
		h := res.Handle()
		_, err := io.Copy(io.Discard, h)
		if cerr := h.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return &Error{Code: ErrCodeIO, Message: "loading format " + name, Err: err}
		}
		return nil
	case res.IsError():
		return &Error{Code: ErrCodeIO, Message: "opening format " + name, Err: res.Err()}
	}

	// No format anywhere: dump one where the stack accepts it.
	status.Notef(r.sink, "format %s not found; dumping a new one", name)
	out := r.p.OutputOpenName(name)
	if out.IsNotAvailable() {
		status.Warnf(r.sink, "no provider accepts format %s; it will be rebuilt next time", name)
		return nil
	}
	return r.commit(name, out, []byte("texstack format "+name+"\n"))
}

// readAux parses the aux file of the previous pass. A missing file is an
// empty one.
func (r *run) readAux(name string) (map[string]string, error) {
	known := make(map[string]string)
	res := r.p.InputOpenName(name, r.sink)
	switch {
	case res.IsNotAvailable():
		return known, nil
	case res.IsError():
		return nil, &Error{Code: ErrCodeIO, Message: "opening " + name, Err: res.Err()}
	}
	h := res.Handle()
	defer h.Close()

	sc := bufio.NewScanner(h)
	for sc.Scan() {
		if m := newlabelLine.FindStringSubmatch(sc.Text()); m != nil {
			known[m[1]] = m[2]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, &Error{Code: ErrCodeIO, Message: "reading " + name, Err: err}
	}
	return known, nil
}

// scan processes h and everything it inputs, closing h.
func (r *run) scan(h *provider.InputHandle) error {
	defer h.Close()
	if err := r.quota.enter(h.Name()); err != nil {
		return err
	}
	defer r.quota.leave()
	r.files = append(r.files, h.Name())

	sc := bufio.NewScanner(h)
	line := 0
	for sc.Scan() {
		line++
		if err := r.line(h.Name(), line, sc.Text()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return &Error{Code: ErrCodeIO, Message: "reading", File: h.Name(), Line: line, Err: err}
	}
	return nil
}

func (r *run) line(file string, n int, text string) error {
	last := 0
	for _, m := range commandPattern.FindAllStringSubmatchIndex(text, -1) {
		r.out.WriteString(text[last:m[0]])
		last = m[1]
		cmd, arg := text[m[2]:m[3]], text[m[4]:m[5]]

		switch cmd {
		case "input", "include", "InputIfFileExists":
			if err := r.input(file, n, arg, cmd == "InputIfFileExists"); err != nil {
				return err
			}
		case "section":
			r.section++
			fmt.Fprintf(&r.out, "%d %s", r.section, arg)
		case "label":
			if _, dup := r.labels[arg]; dup {
				status.Warnf(r.sink, "%s:%d: label `%s' multiply defined", file, n, arg)
				continue
			}
			r.labels[arg] = strconv.Itoa(r.section)
			r.order = append(r.order, arg)
		case "ref":
			if v, ok := r.known[arg]; ok {
				r.out.WriteString(v)
			} else {
				r.out.WriteString("??")
				r.undefined = append(r.undefined, arg)
				status.Warnf(r.sink, "%s:%d: reference `%s' undefined", file, n, arg)
			}
		}
	}
	r.out.WriteString(text[last:])
	r.out.WriteByte('\n')
	return nil
}

func (r *run) input(file string, line int, name string, optional bool) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if path.Ext(name) == "" {
		name += ".tex"
	}
	res := r.p.InputOpenName(name, r.sink)
	switch {
	case res.IsNotAvailable():
		if optional {
			return nil
		}
		return &Error{Code: ErrCodeFileNotFound, Message: "file " + name + " not found", File: file, Line: line}
	case res.IsError():
		return &Error{Code: ErrCodeIO, Message: "opening " + name, File: file, Line: line, Err: res.Err()}
	}
	return r.scan(res.Handle())
}

func (r *run) aux() []byte {
	var b bytes.Buffer
	b.WriteString("\\relax\n")
	for _, key := range r.order {
		fmt.Fprintf(&b, "\\newlabel{%s}{%s}\n", key, r.labels[key])
	}
	return b.Bytes()
}

func (r *run) write(name string, data []byte) error {
	res := r.p.OutputOpenName(name)
	switch {
	case res.IsNotAvailable():
		return &Error{Code: ErrCodeIO, Message: "no provider accepts output " + name}
	case res.IsError():
		return &Error{Code: ErrCodeIO, Message: "opening output " + name, Err: res.Err()}
	}
	return r.commit(name, res, data)
}

func (r *run) commit(name string, res provider.OpenResult[*provider.OutputHandle], data []byte) error {
	if res.IsError() {
		return &Error{Code: ErrCodeIO, Message: "opening output " + name, Err: res.Err()}
	}
	h := res.Handle()
	_, err := h.Write(data)
	if cerr := h.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &Error{Code: ErrCodeIO, Message: "writing " + name, Err: err}
	}
	return nil
}

// stdout prints to the terminal output when the stack has one.
func (r *run) stdout(msg string) {
	res := r.p.OutputOpenStdout()
	if !res.IsSuccess() {
		return
	}
	h := res.Handle()
	io.WriteString(h, msg)
	h.Close()
}

func logText(pass int, o *Outcome) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "This is texstack's reference engine, pass %d\n", pass)
	for _, f := range o.Files {
		fmt.Fprintf(&b, "(%s)\n", f)
	}
	fmt.Fprintf(&b, "labels: %d\n", o.Labels)
	if len(o.Undefined) > 0 {
		fmt.Fprintf(&b, "undefined references: %s\n", strings.Join(o.Undefined, ", "))
	}
	fmt.Fprintf(&b, "output: %s.out (%d bytes)\n", o.Job, o.OutputSize)
	return b.Bytes()
}

var _ passes.Engine = (*Engine)(nil)
