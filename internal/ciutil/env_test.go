package ciutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvCI, EnvGitHubActions, EnvGitLabCI, EnvJenkinsURL, EnvCircleCI,
		EnvTestDBURL, EnvDatabaseURL, EnvAppDatabaseURL,
	} {
		t.Setenv(name, "")
	}
}

func TestIsCI(t *testing.T) {
	clearEnv(t)
	assert.False(t, IsCI())

	t.Setenv(EnvGitLabCI, "true")
	assert.True(t, IsCI())
}

func TestGetTestDatabaseURL(t *testing.T) {
	clearEnv(t)
	assert.Empty(t, GetTestDatabaseURL())

	t.Setenv(EnvAppDatabaseURL, "postgres://app/db")
	assert.Equal(t, "postgres://app/db", GetTestDatabaseURL())

	t.Setenv(EnvDatabaseURL, " postgres://generic/db ")
	assert.Equal(t, "postgres://generic/db", GetTestDatabaseURL())

	t.Setenv(EnvTestDBURL, "postgres://test/db")
	assert.Equal(t, "postgres://test/db", GetTestDatabaseURL())
}
