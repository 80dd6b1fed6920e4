package blocker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Murilovisque/logs/v3"
)

// timeout(1) exit statuses. 124 means the bound elapsed, which for a
// suppression window is the normal outcome.
const (
	exitTimeoutExpired  = 124
	exitCannotInvoke    = 126
	exitCommandNotFound = 127
)

func NewArpspoofBlocker() *ArpspoofBlocker {
	return &ArpspoofBlocker{
		name:        "arpspoof",
		tool:        "arpspoof",
		timeoutTool: "timeout",
		logger:      logs.NewChildLogger(logs.FixedFieldValue("blocker", "arpspoof")),
	}
}

// ArpspoofBlocker desynchronizes address resolution for the gateway by
// running arpspoof under timeout(1). The OS-level timeout bounds the
// spoof independently of this process, so a killed daemon cannot leave
// the block running.
type ArpspoofBlocker struct {
	name        string
	tool        string
	timeoutTool string
	sudo        bool
	logger      logs.Logger
}

func (ab *ArpspoofBlocker) GetName() string {
	return ab.name
}

func (ab *ArpspoofBlocker) DecodeConfig(c BlockerConfig) error {
	var abj arpspoofBlockerJson
	err := json.Unmarshal(c.Specification, &abj)
	if err != nil {
		return fmt.Errorf("blocker '%s', fail to decode. Error: %w", c.Name, err)
	}
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("blocker with empty name")
	}
	ab.name = c.Name
	if abj.Tool != "" {
		ab.tool = abj.Tool
	}
	if abj.TimeoutTool != "" {
		ab.timeoutTool = abj.TimeoutTool
	}
	ab.sudo = abj.Sudo
	ab.logger = logs.NewChildLogger(logs.FixedFieldValue("blocker", ab.name))
	ab.logger.Info("arpspoof blocker config loaded")
	return nil
}

// Block runs `timeout <secs> arpspoof -i <iface> <gw>` and waits for
// it to terminate. ctx cancellation kills the spoof immediately,
// restoring connectivity.
func (ab *ArpspoofBlocker) Block(ctx context.Context, t BlockTarget) error {
	if err := t.validate(); err != nil {
		return fmt.Errorf("blocker '%s': %w", ab.name, err)
	}
	secs := int((t.Timeout + time.Second - 1) / time.Second)
	args := []string{ab.timeoutTool, strconv.Itoa(secs), ab.tool, "-i", t.Interface, t.Gateway}
	if ab.sudo {
		args = append([]string{"sudo"}, args...)
	}
	ab.logger.Infof("blocking gateway '%s' on '%s' for %ds", t.Gateway, t.Interface, secs)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	// Cancellation must stop the spoof itself, not just timeout(1).
	// Run the pair in their own process group and terminate the group.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		ab.logger.Infof("block of gateway '%s' cancelled", t.Gateway)
		return ctx.Err()
	}
	if err != nil {
		if classified := classifyToolError(err, out); classified != nil {
			return fmt.Errorf("blocker '%s': %w", ab.name, classified)
		}
	}
	ab.logger.Infof("block of gateway '%s' over, connectivity restored", t.Gateway)
	return nil
}

func classifyToolError(err error, out []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrToolUnavailable, err)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case exitTimeoutExpired:
			// The bound elapsed, the spoof ran its full window.
			return nil
		case exitCannotInvoke, exitCommandNotFound:
			return fmt.Errorf("%w: %s", ErrToolUnavailable, firstLine(out))
		}
		lowered := strings.ToLower(string(out))
		for _, hint := range []string{"permission denied", "operation not permitted", "must be root", "password is required"} {
			if strings.Contains(lowered, hint) {
				return fmt.Errorf("%w: %s", ErrPermission, firstLine(out))
			}
		}
		return fmt.Errorf("suppression tool failed. Cmd %s. Error: %w", firstLine(out), err)
	}
	return fmt.Errorf("suppression tool failed to start. Error: %w", err)
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

type arpspoofBlockerJson struct {
	Tool        string
	TimeoutTool string
	Sudo        bool
}
