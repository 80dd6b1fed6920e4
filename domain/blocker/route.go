package blocker

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DiscoverRoute asks the OS for the default gateway and its interface
// by parsing `ip route` output. Used when the config leaves the
// interface or gateway empty.
func DiscoverRoute(ctx context.Context) (gateway, iface string, err error) {
	cmd := exec.CommandContext(ctx, "ip", "route")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", "", fmt.Errorf("'ip route' failed. Cmd %s. Error: %w", firstLine(out), err)
	}
	return parseDefaultRoute(string(out))
}

func parseDefaultRoute(out string) (gateway, iface string, err error) {
	for _, ln := range strings.Split(out, "\n") {
		fields := strings.Fields(ln)
		if len(fields) < 3 || fields[0] != "default" || fields[1] != "via" {
			continue
		}
		gateway = fields[2]
		for i := 3; i < len(fields)-1; i++ {
			if fields[i] == "dev" {
				iface = fields[i+1]
				break
			}
		}
		if iface != "" {
			return gateway, iface, nil
		}
	}
	return "", "", fmt.Errorf("'ip route' returned no default route")
}
