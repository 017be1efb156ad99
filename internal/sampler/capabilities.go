package sampler

import (
	"os/exec"

	"github.com/prometheus/procfs"
)

// Capabilities records which optional tooling exists on the host. It is
// resolved once at startup and handed to the sources, which never
// re-probe.
type Capabilities struct {
	// ProcFS is true when /proc is mounted and readable.
	ProcFS bool

	// GPU is true when the GPU management utility was found.
	GPU bool

	// GPUTool is the resolved path of the utility (empty if !GPU).
	GPUTool string

	// GPUDevice is the device index used for device-wide figures.
	GPUDevice int
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// DetectCapabilities probes for procfs and for the GPU utility.
func DetectCapabilities(gpuTool string, gpuDevice int) Capabilities {
	caps := Capabilities{GPUDevice: gpuDevice}

	if fs, err := procfs.NewDefaultFS(); err == nil {
		if _, err := fs.Stat(); err == nil {
			caps.ProcFS = true
		}
	}

	if gpuTool != "" {
		if path, err := lookPath(gpuTool); err == nil {
			caps.GPU = true
			caps.GPUTool = path
		}
	}

	return caps
}
