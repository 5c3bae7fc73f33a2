package vcpname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Brightness", Describe(0x10))
	assert.Equal(t, "Contrast", Describe(0x12))
	assert.Equal(t, "Save current settings", Describe(0x0c))
	assert.Equal(t, "Unknown control 0x9f", Describe(0x9f))
}
