package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "sunlamp/context/phase/porch", PhaseTopic("porch"))
	assert.Equal(t, "sunlamp/status/porch", StatusTopic("porch"))
	assert.Equal(t, "sunlamp/command/light/0", CommandTopic("0"))
}
