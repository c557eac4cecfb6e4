package archlattice

import (
	"fmt"

	"github.com/TheBitDrifter/bark"
)

// CrashHandler is invoked on a contract violation that the engine has no
// recovery path for (stale handle reused past generation, archetype row out
// of range, a required component missing at dispatch time). The default
// handler formats the message through bark and panics; SetCrashHandler
// installs a replacement, e.g. one that records the message instead of
// unwinding the goroutine.
type CrashHandler func(msg string)

var crashHandler CrashHandler = defaultCrashHandler

// SetCrashHandler overrides the package-level crash handler. Passing nil
// restores the default log-then-panic behavior.
func SetCrashHandler(h CrashHandler) {
	if h == nil {
		crashHandler = defaultCrashHandler
		return
	}
	crashHandler = h
}

func defaultCrashHandler(msg string) {
	panic(bark.AddTrace(fmt.Errorf("archlattice: %s", msg)))
}

func crash(format string, args ...any) {
	crashHandler(fmt.Sprintf(format, args...))
}
