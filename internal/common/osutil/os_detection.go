package osutil

import (
	"os"
	"runtime"
)

// OS type constants
const (
	Windows = "windows"
	MacOS   = "darwin"
	Linux   = "linux"
)

// GetOSType returns the current operating system type
func GetOSType() string {
	return runtime.GOOS
}

// IsDevEnvironment reports whether local ./config, ./cache and ./logs
// directories should be used instead of the per-user locations.
func IsDevEnvironment() bool {
	return os.Getenv("RECIPE_RUNNER_ENV") == "development" ||
		os.Getenv("RECIPE_RUNNER_DEV") == "true"
}

// IsRunningInPipeline returns true if running in a CI/CD pipeline environment
func IsRunningInPipeline() bool {
	return os.Getenv("CI") == "true" ||
		os.Getenv("PIPELINE") == "true" ||
		os.Getenv("GITHUB_ACTIONS") == "true" ||
		os.Getenv("JENKINS_URL") != ""
}

// GetArchitecture returns the system architecture (amd64, arm64, etc.)
func GetArchitecture() string {
	return runtime.GOARCH
}

// GetNumCPU returns the number of logical CPUs on the system
func GetNumCPU() int {
	return runtime.NumCPU()
}
