package ciutil

import (
	"os"
	"strings"
)

// Environment variables read by the test tooling.
const (
	EnvCI            = "CI"
	EnvGitHubActions = "GITHUB_ACTIONS"
	EnvGitLabCI      = "GITLAB_CI"
	EnvJenkinsURL    = "JENKINS_URL"
	EnvCircleCI      = "CIRCLECI"

	// EnvTestDBURL is the preferred name for the integration test database.
	EnvTestDBURL = "TASKCONVERT_TEST_DB_URL"
	// EnvDatabaseURL is honoured as a fallback.
	EnvDatabaseURL = "DATABASE_URL"
	// EnvAppDatabaseURL is the service's own setting.
	EnvAppDatabaseURL = "TASKCONVERT_DATABASE_URL"
)

// IsCI returns true if the current environment is a CI environment.
func IsCI() bool {
	for _, name := range []string{EnvCI, EnvGitHubActions, EnvGitLabCI, EnvJenkinsURL, EnvCircleCI} {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// GetTestDatabaseURL returns the first non-empty database URL among
// EnvTestDBURL, EnvDatabaseURL and EnvAppDatabaseURL, or "".
func GetTestDatabaseURL() string {
	for _, name := range []string{EnvTestDBURL, EnvDatabaseURL, EnvAppDatabaseURL} {
		if url := strings.TrimSpace(os.Getenv(name)); url != "" {
			return url
		}
	}
	return ""
}
