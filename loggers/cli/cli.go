package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	color2 "github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

var Default = New(os.Stderr, true)

var bold = color2.New(color2.Bold)

var Strings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  " INFO",
	log.WarnLevel:  " WARN",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

type Handler struct {
	mu      sync.Mutex
	Writer  io.Writer
	Padding int
}

func New(w io.Writer, useColors bool) *Handler {
	if f, ok := w.(*os.File); ok {
		if useColors {
			return &Handler{Writer: colorable.NewColorable(f), Padding: 2}
		}
	}

	return &Handler{Writer: colorable.NewNonColorable(w), Padding: 2}
}

// HandleLog prints a formatted log line to the configured output.
func (h *Handler) HandleLog(e *log.Entry) error {
	color := cli.Colors[e.Level]
	level := Strings[e.Level]
	names := e.Fields.Names()

	h.mu.Lock()
	defer h.mu.Unlock()

	_, _ = color.Fprintf(h.Writer, "%s: [%s] %-25s", bold.Sprintf("%*s", h.Padding+1, level), time.Now().Format(time.StampMilli), e.Message)

	for _, name := range names {
		if name == "source" {
			continue
		}

		_, _ = fmt.Fprintf(h.Writer, " %s=%v", color.Sprint(name), e.Fields.Get(name))
	}

	_, _ = fmt.Fprintln(h.Writer)

	for _, name := range names {
		if name != "error" {
			continue
		}

		var br error

		if err, ok := e.Fields.Get("error").(error); ok {
			// Attach the stack trace if it is missing at this point, but
			// don't change anything if we already have a trace attached to
			// the error.
			br = errors.WithStackDepthIf(err, 4)
		} else {
			// Errors that get logged should always be of the error type,
			// anything else can't be unwrapped and is likely a bug.
			br = errors.New(fmt.Sprintf("cli: unexpected non-error field type %+v", e.Fields.Get("error")))
		}

		if e, ok := br.(stackTracer); ok {
			frame := e.StackTrace()[0]

			_, _ = fmt.Fprintf(h.Writer, "\n%s\n%s\n\n", color2.RedString("Stacktrace:"), fmt.Sprintf("%+v", br))
			_, _ = fmt.Fprintf(h.Writer, "%s: %s:%d\n", color2.RedString("Origin"), fmt.Sprintf("%s", frame), frame)
		} else {
			_, _ = fmt.Fprintf(h.Writer, "\n%s\n%+v\n\n", color2.RedString("Stacktrace:"), br)
		}
	}

	return nil
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}
