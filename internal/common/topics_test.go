package common_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/appfunctions-sdk/internal/common"
)

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		name    string
		topic   string
		pattern string
		want    bool
	}{
		{"exact match", "a/b/c", "a/b/c", true},
		{"multi-level wildcard matches anything", "a/b/c", "#", true},
		{"single-level wildcard matches one level", "a/b/c", "a/+/c", true},
		{"trailing multi-level wildcard matches suffix", "sensors/room1/temp", "sensors/#", true},
		{"shorter topic does not match longer pattern", "a/b", "a/b/c", false},
		{"single-level wildcard does not span levels", "a/b/c/d", "a/+/c", false},
		{"different literal level", "a/x/c", "a/b/c", false},
		{"root multi-level wildcard", "sensors/#", "sensors/#", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, common.TopicMatches(tc.topic, tc.pattern))
		})
	}
}

func TestAnyTopicMatches(t *testing.T) {
	assert.True(t, common.AnyTopicMatches("sensors/room1/humidity", []string{"sensors/+/temp", "sensors/#"}))
	assert.False(t, common.AnyTopicMatches("other/topic", []string{"sensors/+/temp", "sensors/room1/#"}))
}

func TestJoinBaseTopic(t *testing.T) {
	assert.Equal(t, "base/topic", common.JoinBaseTopic("base", "topic"))
	assert.Equal(t, "topic", common.JoinBaseTopic("", "topic"))
	assert.Equal(t, "base", common.JoinBaseTopic("base", ""))
	assert.Equal(t, "base/topic", common.JoinBaseTopic("/base/", "/topic/"))
}
