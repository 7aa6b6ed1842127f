// Package log provides leveled, structured logging in the key/value style
// used throughout the collaborator's codebase: log.Info("message", "k1", v1,
// "k2", v2, ...). core/processor logs one line per dispatch through it, and
// cmd/gearrun wires its output handler at startup.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging severity level, ordered most to least severe (Crit is
// 0, Trace is 5; Trace is the most verbose, Crit the least).
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "crit"
	case LvlError:
		return "eror"
	case LvlWarn:
		return "warn"
	case LvlInfo:
		return "info"
	case LvlDebug:
		return "dbug"
	case LvlTrace:
		return "trce"
	default:
		return "unkn"
	}
}

// Record is one log event as handed to a Handler.
type Record struct {
	Time  time.Time
	Lvl   Lvl
	Msg   string
	Ctx   []interface{}
	Call  stack.Call
}

// Handler writes a Record somewhere: a stream, a ring buffer, a filter.
type Handler interface {
	Log(r *Record) error
}

// FuncHandler adapts a function to Handler.
type FuncHandler func(r *Record) error

func (f FuncHandler) Log(r *Record) error { return f(r) }

// StreamHandler writes formatted records to wr, guarding concurrent writers
// with a mutex the way the collaborator's StreamHandler does.
func StreamHandler(wr io.Writer, fmtr Format) Handler {
	var mu sync.Mutex
	return FuncHandler(func(r *Record) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := wr.Write(fmtr.Format(r))
		return err
	})
}

// LvlFilterHandler drops records above (less severe than) maxLvl.
func LvlFilterHandler(maxLvl Lvl, h Handler) Handler {
	return FuncHandler(func(r *Record) error {
		if r.Lvl > maxLvl {
			return nil
		}
		return h.Log(r)
	})
}

// MultiHandler fans a record out to every handler in hs.
func MultiHandler(hs ...Handler) Handler {
	return FuncHandler(func(r *Record) error {
		for _, h := range hs {
			_ = h.Log(r)
		}
		return nil
	})
}

// Logger is the caller-facing API: Trace/Debug/Info/Warn/Error/Crit, each
// taking a message and an alternating key/value context, plus New for
// deriving a child logger with extra fixed context.
type Logger interface {
	New(ctx ...interface{}) Logger

	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})

	SetHandler(h Handler)
}

type logger struct {
	ctx []interface{}
	h   *swapHandler
}

type swapHandler struct {
	mu sync.RWMutex
	h  Handler
}

func (s *swapHandler) Log(r *Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.h.Log(r)
}

func (s *swapHandler) Swap(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.h = h
}

func (l *logger) write(msg string, lvl Lvl, ctx []interface{}) {
	r := &Record{
		Time: time.Now(),
		Lvl:  lvl,
		Msg:  msg,
		Ctx:  append(l.ctx, ctx...),
	}
	if calls := stack.Callers(); len(calls) > 2 {
		r.Call = calls[2]
	}
	_ = l.h.Log(r)
}

func (l *logger) New(ctx ...interface{}) Logger {
	child := &logger{h: l.h}
	child.ctx = make([]interface{}, 0, len(l.ctx)+len(ctx))
	child.ctx = append(child.ctx, l.ctx...)
	child.ctx = append(child.ctx, ctx...)
	return child
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(msg, LvlTrace, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(msg, LvlDebug, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(msg, LvlInfo, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(msg, LvlWarn, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(msg, LvlError, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.write(msg, LvlCrit, ctx)
	os.Exit(1)
}

func (l *logger) SetHandler(h Handler) { l.h.Swap(h) }

var root = &logger{h: new(swapHandler)}

func init() {
	usecolor := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	var out io.Writer = os.Stderr
	if usecolor {
		out = colorable.NewColorableStderr()
	}
	root.SetHandler(LvlFilterHandler(LvlInfo, StreamHandler(out, TerminalFormat(usecolor))))
}

// Root returns the root logger.
func Root() Logger { return root }

// New creates a child of the root logger with the given context.
func New(ctx ...interface{}) Logger { return root.New(ctx...) }

// SetDefault replaces the root handler, e.g. to raise verbosity or redirect
// to a file; cmd/gearrun uses this to honor a --verbosity flag.
func SetDefault(maxLvl Lvl, h Handler) {
	root.SetHandler(LvlFilterHandler(maxLvl, h))
}

func Trace(msg string, ctx ...interface{}) { root.write(msg, LvlTrace, ctx) }
func Debug(msg string, ctx ...interface{}) { root.write(msg, LvlDebug, ctx) }
func Info(msg string, ctx ...interface{})  { root.write(msg, LvlInfo, ctx) }
func Warn(msg string, ctx ...interface{})  { root.write(msg, LvlWarn, ctx) }
func Error(msg string, ctx ...interface{}) { root.write(msg, LvlError, ctx) }
func Crit(msg string, ctx ...interface{}) {
	root.write(msg, LvlCrit, ctx)
	os.Exit(1)
}
