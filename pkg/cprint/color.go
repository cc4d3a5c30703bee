// Package cprint prints colored, user-facing connection and replication
// events to the console, mirroring the vocabulary of the entity action
// stream (§4, §6) instead of create/update/delete lines.
package cprint

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	// mu is used to synchronize writes from multiple goroutines.
	mu sync.Mutex
	// DisableOutput disables all output.
	DisableOutput bool
	// PlainSink, when non-nil, additionally receives every line with ANSI
	// color codes stripped -- used to duplicate console output into a
	// plain-text log file.
	PlainSink io.Writer
)

// IsTerminal reports whether fd 1 is attached to a terminal. Demo tooling
// built on this package can use it to decide whether to force colors off.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func conditionalPrintf(fn func(string, ...interface{}), plain string, format string, a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(format, a...)
	tee(plain, a...)
}

func conditionalPrintln(fn func(...interface{}), a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(a...)
	tee("", a...)
}

func conditionalPrintlnCustomWriter(fn func(io.Writer, ...interface{}), w io.Writer, a ...interface{}) {
	if DisableOutput {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fn(w, a...)
	tee("", a...)
}

func tee(format string, a ...interface{}) {
	if PlainSink == nil {
		return
	}
	var line string
	if format != "" {
		line = fmt.Sprintf(format, a...)
	} else {
		line = strings.TrimSuffix(fmt.Sprintln(a...), "\n")
	}
	_, _ = io.WriteString(PlainSink, stripansi.Strip(line)+"\n")
}

var (
	spawnPrintf  = color.New(color.FgGreen).PrintfFunc()
	despawnPrintf = color.New(color.FgRed).PrintfFunc()
	updatePrintf = color.New(color.FgYellow).PrintfFunc()

	// SpawnPrintf is fmt.Printf with green as foreground color, for
	// SpawnEntity/InsertComponent style actions.
	SpawnPrintf = func(format string, a ...interface{}) {
		conditionalPrintf(spawnPrintf, format, format, a...)
	}

	// DespawnPrintf is fmt.Printf with red as foreground color, for
	// DespawnEntity/RemoveComponent style actions.
	DespawnPrintf = func(format string, a ...interface{}) {
		conditionalPrintf(despawnPrintf, format, format, a...)
	}

	// UpdatePrintf is fmt.Printf with yellow as foreground color, for
	// UpdateComponent actions.
	UpdatePrintf = func(format string, a ...interface{}) {
		conditionalPrintf(updatePrintf, format, format, a...)
	}

	spawnPrintln    = color.New(color.FgGreen).PrintlnFunc()
	despawnPrintln  = color.New(color.FgRed).PrintlnFunc()
	updatePrintln   = color.New(color.FgYellow).PrintlnFunc()
	connectPrintln  = color.New(color.FgCyan).PrintlnFunc()
	errorFprintln   = color.New(color.FgRed).FprintlnFunc()

	// SpawnPrintln is fmt.Println with green as foreground color.
	SpawnPrintln = func(a ...interface{}) {
		conditionalPrintln(spawnPrintln, a...)
	}

	// DespawnPrintln is fmt.Println with red as foreground color.
	DespawnPrintln = func(a ...interface{}) {
		conditionalPrintln(despawnPrintln, a...)
	}

	// UpdatePrintln is fmt.Println with yellow as foreground color.
	UpdatePrintln = func(a ...interface{}) {
		conditionalPrintln(updatePrintln, a...)
	}

	// ConnectPrintln is fmt.Println with cyan as foreground color, for
	// connection lifecycle events (handshake, disconnect).
	ConnectPrintln = func(a ...interface{}) {
		conditionalPrintln(connectPrintln, a...)
	}

	// ErrorPrintlnStdErr prints to stderr in red.
	ErrorPrintlnStdErr = func(a ...interface{}) {
		conditionalPrintlnCustomWriter(errorFprintln, os.Stderr, a...)
	}
)
