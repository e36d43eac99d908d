package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	for _, s := range []string{"admin", "callmaker", "user"} {
		r, ok := ParseRole(s)
		assert.True(t, ok, s)
		assert.Equal(t, Role(s), r)
	}
	for _, s := range []string{"", "Admin", "moderator", "root"} {
		_, ok := ParseRole(s)
		assert.False(t, ok, s)
	}
}

func TestSignalStatus(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, SignalStatus("archived").Valid())
}
