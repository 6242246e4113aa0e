// Package testing flags the process as a test run when blank-imported.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/parkwise/parkwise/internal/app"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(app.TestModeEnv, "1")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
