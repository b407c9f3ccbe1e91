package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	_ "github.com/coachdesk/coachdesk/internal/testing/guard"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("COACHDESK_TEST_MODE", "1")
		if os.Getenv("INSIGHTS_URL") == "" {
			_ = os.Setenv("INSIGHTS_URL", "http://127.0.0.1:0")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
