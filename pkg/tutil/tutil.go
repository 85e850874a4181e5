package tutil

import (
	"os"
	"strings"
)

// IsIntegrationTest reports whether tests that need external services
// (a real MySQL instance, a remote staging node) should run. Set
// STAGING_TEST=integration to enable them.
func IsIntegrationTest() bool {
	testType := os.Getenv("STAGING_TEST")
	return strings.ToLower(testType) == "integration"
}
