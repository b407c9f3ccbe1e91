package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("COACHDESK_TEST_MODE") == "" {
			_ = os.Setenv("COACHDESK_TEST_MODE", "1")
		}
	})
}
