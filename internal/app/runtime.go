package app

import (
	"os"
	"strconv"
	"sync"
)

// TestModeEnv makes the binaries return before touching Postgres or Redis.
const TestModeEnv = "PARKWISE_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	on, err := strconv.ParseBool(os.Getenv(TestModeEnv))
	return err == nil && on
})

// InTestMode reports whether TestModeEnv is set to a true value. It is read
// once per process.
func InTestMode() bool {
	return testMode()
}
