package prompt

import (
	"fmt"
	"testing"

	"github.com/manifoldco/promptui"
	"github.com/stretchr/testify/assert"
)

func TestConfirmWithForceSkipsPrompt(t *testing.T) {
	ok, err := ConfirmWithForce("Delete every unused cache?", true)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAborted(t *testing.T) {
	assert.True(t, IsAborted(ErrAborted))
	assert.True(t, IsAborted(promptui.ErrInterrupt))
	assert.True(t, IsAborted(fmt.Errorf("purge: %w", ErrAborted)))
	assert.False(t, IsAborted(promptui.ErrAbort))
	assert.False(t, IsAborted(nil))
}

func TestIsYes(t *testing.T) {
	for _, in := range []string{"y", "Y", "yes", " YES "} {
		assert.True(t, isYes(in), in)
	}
	for _, in := range []string{"", "n", "no", "yep"} {
		assert.False(t, isYes(in), in)
	}
}
