package log

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

const timeFormat = "2006-01-02T15:04:05-0700"
const termTimeFormat = "01-02|15:04:05.000"
const errorKey = "LOG_ERROR"

var (
	levelColors = map[Lvl]*color.Color{
		LvlCrit:  color.New(color.FgMagenta, color.Bold),
		LvlError: color.New(color.FgRed),
		LvlWarn:  color.New(color.FgYellow),
		LvlInfo:  color.New(color.FgGreen),
		LvlDebug: color.New(color.FgCyan),
		LvlTrace: color.New(color.FgBlue),
	}
)

// Format pretty-prints a Record for terminal or plain output.
type Format interface {
	Format(r *Record) []byte
}

// FormatFunc adapts a bare function to the Format interface.
type FormatFunc func(*Record) []byte

func (f FormatFunc) Format(r *Record) []byte { return f(r) }

// TerminalFormat renders a record the way a human reading a scrolling
// terminal wants it: fixed-width level, short timestamp, message, then
// key=value pairs. Colorized when useColor is true.
func TerminalFormat(useColor bool) Format {
	return FormatFunc(func(r *Record) []byte {
		var sb strings.Builder
		lvl := r.Lvl.String()
		if useColor {
			if c, ok := levelColors[r.Lvl]; ok {
				lvl = c.Sprint(strings.ToUpper(lvl))
			}
		} else {
			lvl = strings.ToUpper(lvl)
		}
		fmt.Fprintf(&sb, "%s[%s] %s", lvl, r.Time.Format(termTimeFormat), r.Msg)
		formatLogfmtCtx(&sb, r.Ctx, useColor)
		sb.WriteByte('\n')
		return []byte(sb.String())
	})
}

// LogfmtFormat renders records as logfmt: key=value pairs only, no color,
// suited to non-terminal sinks (files, log aggregators).
func LogfmtFormat() Format {
	return FormatFunc(func(r *Record) []byte {
		var sb strings.Builder
		fmt.Fprintf(&sb, "t=%s lvl=%s msg=%s", r.Time.Format(timeFormat), r.Lvl.String(), quoteIfNeeded(r.Msg))
		formatLogfmtCtx(&sb, r.Ctx, false)
		sb.WriteByte('\n')
		return []byte(sb.String())
	})
}

func formatLogfmtCtx(sb *strings.Builder, ctx []interface{}, useColor bool) {
	for i := 0; i < len(ctx); i += 2 {
		k := toString(ctx[i])
		var v interface{}
		if i+1 < len(ctx) {
			v = ctx[i+1]
		} else {
			v = nil
		}
		sb.WriteByte(' ')
		if useColor {
			sb.WriteString(color.New(color.Faint).Sprint(k))
		} else {
			sb.WriteString(k)
		}
		sb.WriteByte('=')
		sb.WriteString(quoteIfNeeded(formatValue(v)))
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	case []byte:
		return "0x" + strconv.QuoteToASCII(string(val))
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("%+v", v)
}

func quoteIfNeeded(s string) string {
	if !strings.ContainsAny(s, " \t\"=") {
		return s
	}
	return strconv.Quote(s)
}
