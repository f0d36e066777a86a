package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("GRIDLINE_TEST_MODE") == "" {
			_ = os.Setenv("GRIDLINE_TEST_MODE", "1")
		}
	})
}
