package wireproto

// logging.go: a package-level timestamped debug printer, gated on
// Config.Verbose. Grounded directly on the teacher's tube/vprint.go vv()/
// tsPrintf()/ts() trio — a homegrown timestamped logger using
// 4d63.com/tz-resolved locations rather than a structured logging library,
// since the teacher repo does not pull one in (see DESIGN.md).

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"sync"
	"time"

	"4d63.com/tz"
)

const logTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var (
	logTz   *time.Location
	logOnce sync.Once
)

func loggingLocation() *time.Location {
	logOnce.Do(func() {
		loc, err := tz.LoadLocation("UTC")
		if err != nil {
			loc = time.UTC
		}
		logTz = loc
	})
	return logTz
}

var (
	logMu     sync.Mutex
	logOut    io.Writer = os.Stderr
	logEnabled          = false
)

// SetVerbose toggles logf's output; Config.apply calls this from Verbose.
func SetVerbose(v bool) {
	logMu.Lock()
	logEnabled = v
	logMu.Unlock()
}

// logf writes a timestamped, call-site-tagged line when verbose logging is
// enabled; it is silent (and cheap) otherwise.
func logf(format string, a ...any) {
	logMu.Lock()
	enabled := logEnabled
	logMu.Unlock()
	if !enabled {
		return
	}
	ts := time.Now().In(loggingLocation()).Format(logTimeFormat)
	site := callerFileLine(2)
	logMu.Lock()
	fmt.Fprintf(logOut, "%s %s %s\n", ts, site, fmt.Sprintf(format, a...))
	logMu.Unlock()
}

func callerFileLine(depth int) string {
	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		return "?"
	}
	return fmt.Sprintf("%s:%d", path.Base(file), line)
}
