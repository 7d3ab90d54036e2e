package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPort(t *testing.T) {
	t.Setenv("CITAS_TEST_PORT", "8085")
	p, err := Port("CITAS_TEST_PORT", "8080")
	require.NoError(t, err)
	assert.Equal(t, "8085", p)

	t.Setenv("CITAS_TEST_PORT", "70000")
	_, err = Port("CITAS_TEST_PORT", "8080")
	assert.Error(t, err)
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("CITAS_TEST_FLAG", "Yes")
	assert.True(t, Bool("CITAS_TEST_FLAG", false))
	assert.False(t, Bool("CITAS_TEST_MISSING", false))

	t.Setenv("CITAS_TEST_LIST", " a, ,b,c ")
	assert.Equal(t, []string{"a", "b", "c"}, List("CITAS_TEST_LIST", ""))
}

func TestProcess(t *testing.T) {
	var cfg struct {
		Port    string `envconfig:"CITAS_TEST_PROCESS_PORT" default:"9000"`
		Timeout int    `envconfig:"CITAS_TEST_PROCESS_TIMEOUT" default:"5"`
		Secret  string `envconfig:"CITAS_TEST_PROCESS_SECRET" required:"true"`
	}
	err := Process("", &cfg)
	require.Error(t, err)

	t.Setenv("CITAS_TEST_PROCESS_SECRET", "s3cret")
	t.Setenv("CITAS_TEST_PROCESS_TIMEOUT", "7")
	require.NoError(t, Process("", &cfg))
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 7, cfg.Timeout)
	assert.Equal(t, "s3cret", cfg.Secret)
}
