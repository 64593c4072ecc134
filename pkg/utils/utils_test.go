package utils

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func TestHashKey(t *testing.T) {
	// This func helps put composite keys in a map.
	key := []any{int64(17), "49.9", "2023-11-14T22:13:20Z"}
	hashed := HashKey(key)
	assert.Equal(t, "17-#-49.9-#-2023-11-14T22:13:20Z", hashed)

	// This also works on single keys.
	assert.Equal(t, "1234", HashKey([]any{"1234"}))

	// nil is rendered as NULL rather than <nil>
	assert.Equal(t, "NULL-#-5", HashKey([]any{nil, 5}))
}

func TestErrInErr(t *testing.T) {
	assert.NotPanics(t, func() {
		ErrInErr(nil)
		ErrInErr(errors.New("close failed"))
	})
}
