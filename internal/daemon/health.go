package daemon

import (
	"context"
	"os/exec"

	"golang.org/x/sys/unix"

	"opuspress/internal/config"
)

// DependencyStatus reports the availability of one external dependency.
type DependencyStatus struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// CheckDependencies verifies the external pieces the pipeline needs:
// the encoder and probe binaries and a writable staging directory.
func CheckDependencies(_ context.Context, cfg *config.Config) []DependencyStatus {
	checks := []DependencyStatus{
		checkBinary("encoder", cfg.FFmpegBinary()),
		checkBinary("duration probe", cfg.FFprobeBinary()),
		checkStaging(cfg.Paths.StagingDir),
	}
	return checks
}

// Healthy reports whether every dependency is available.
func Healthy(statuses []DependencyStatus) bool {
	for _, status := range statuses {
		if !status.Available {
			return false
		}
	}
	return true
}

func checkBinary(name, binary string) DependencyStatus {
	status := DependencyStatus{Name: name, Command: binary}
	path, err := exec.LookPath(binary)
	if err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Available = true
	status.Detail = path
	return status
}

func checkStaging(dir string) DependencyStatus {
	status := DependencyStatus{Name: "staging directory", Command: dir}
	if err := unix.Access(dir, unix.W_OK|unix.X_OK); err != nil {
		status.Detail = err.Error()
		return status
	}
	status.Available = true
	return status
}
