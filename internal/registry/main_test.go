package registry

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards against RunLoop's ticker goroutine (or any future
// background worker) outliving the test that started it.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
