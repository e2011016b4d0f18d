// Package deps checks for the external binaries the video path needs.
package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external dependency stitchbot relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// MediaRequirements lists the binaries used to merge videos. Images need none.
func MediaRequirements(ffmpegPath, ffprobePath string) []Requirement {
	return []Requirement{
		{Name: "FFmpeg", Command: orDefault(ffmpegPath, "ffmpeg"), Description: "video concatenation", Optional: true},
		{Name: "FFprobe", Command: orDefault(ffprobePath, "ffprobe"), Description: "video inspection", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = path
		status.Available = true
		results = append(results, status)
	}
	return results
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
