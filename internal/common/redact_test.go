package common_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/couchcryptid/appfunctions-sdk/internal/common"
)

func TestRedactEnvValue(t *testing.T) {
	assert.Equal(t, "[REDACTED]", common.RedactEnvValue("MQTT_PASSWORD", "hunter2pass"))
	assert.Equal(t, "[REDACTED]", common.RedactEnvValue("API_KEY", "sk-abc123"))
	assert.Equal(t, "http", common.RedactEnvValue("TRIGGER_TYPE", "http"))
	assert.Equal(t, "", common.RedactEnvValue("SECRET_TOKEN", ""))
}

func TestRedactString(t *testing.T) {
	s := common.RedactString("user=alice password=hunter2pass", "hunter2pass")
	assert.Equal(t, "user=alice password=[REDACTED]", s)

	// Short values are skipped to avoid spurious redaction of common substrings.
	s2 := common.RedactString("key=ab", "ab")
	assert.Equal(t, "key=ab", s2)
}
