package lifecycle

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// releaseCompanion asks the development-mode helper on localhost to kill the
// local ADB server so a direct connect can claim the interface. Any request
// triggers the release; the helper restarts ADB on its own afterwards.
// Failure here is logged and never fatal — the helper simply isn't running
// on most machines.
func releaseCompanion(ctx context.Context, port int) {
	url := fmt.Sprintf("http://localhost:%d/", port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		log.Printf("companion: building request: %v", err)
		return
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("companion: not reachable on port %d: %v", port, err)
		return
	}
	resp.Body.Close()

	log.Printf("companion: released adb server (status %d)", resp.StatusCode)
}

// conflictingProcessName scans the process table for a running ADB server,
// the usual holder of the device interface when a direct claim fails. Used
// only to make the DeviceInUse message actionable.
func conflictingProcessName() (string, bool) {
	procs, err := process.Processes()
	if err != nil {
		return "", false
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		base := strings.TrimSuffix(strings.ToLower(name), ".exe")
		if base == "adb" {
			return name, true
		}
	}
	return "", false
}
