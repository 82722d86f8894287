// Except.go: Contains functions to make handling panics less PITA

package helpers

import (
	"fmt"

	"github.com/Redeven/Streambot/cache"
	"github.com/getsentry/raven-go"
)

// DEBUG_MODE makes Relax print the error before panicking
var DEBUG_MODE = false

// Recover recover()s and reports the error to the log and sentry
func Recover() {
	err := recover()
	if err != nil {
		cache.GetLogger().WithField("module", "helpers").Errorf("recovered from panic: %#v", err)

		raven.CaptureError(fmt.Errorf("%#v", err), map[string]string{})
	}
}

// Relax is a helper to reduce if-checks if panicking is allowed
// If $err is nil this is a no-op. Panics otherwise.
func Relax(err error) {
	if err != nil {
		if DEBUG_MODE {
			fmt.Printf("%#v\n", err)
		}
		panic(err)
	}
}

// RelaxLog logs $err and sends it to sentry instead of panicking
func RelaxLog(err error) {
	if err == nil {
		return
	}

	cache.GetLogger().WithField("module", "helpers").Error(err.Error())
	raven.CaptureError(err, map[string]string{})
}
