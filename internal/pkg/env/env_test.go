package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrefersLoadedMap(t *testing.T) {
	t.Setenv("MARKETLY_TEST_KEY", "from-os")
	Env = map[string]string{"MARKETLY_TEST_KEY": "from-file"}
	defer func() { Env = nil }()

	assert.Equal(t, "from-file", GetEnv("MARKETLY_TEST_KEY", "def"))
	assert.Equal(t, "def", GetEnv("MARKETLY_MISSING_KEY", "def"))
}

func TestTypedGetters(t *testing.T) {
	Env = map[string]string{
		"INT_OK":   "42",
		"INT_BAD":  "x",
		"BOOL_ON":  "Yes",
		"BOOL_OFF": "nope",
		"DUR_OK":   "90s",
		"DUR_BAD":  "ninety",
	}
	defer func() { Env = nil }()

	assert.Equal(t, 42, GetEnvInt("INT_OK", 1))
	assert.Equal(t, 1, GetEnvInt("INT_BAD", 1))
	assert.Equal(t, 7, GetEnvInt("INT_UNSET", 7))
	assert.True(t, GetEnvBool("BOOL_ON", false))
	assert.False(t, GetEnvBool("BOOL_OFF", true))
	assert.True(t, GetEnvBool("BOOL_UNSET", true))
	assert.Equal(t, 90*time.Second, GetEnvDuration("DUR_OK", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("DUR_BAD", time.Second))
}
