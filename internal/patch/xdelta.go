package patch

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/xor-128/TheSims4Updater/internal/utils/logger"
)

// XDelta invokes the xdelta3 binary to apply VCDIFF payloads.
type XDelta struct {
	// Path to the xdelta3 executable. Defaults to "xdelta3" on PATH.
	Path string
}

// NewXDelta returns an XDelta using the given executable path, or "xdelta3"
// when empty.
func NewXDelta(path string) *XDelta {
	if path == "" {
		path = "xdelta3"
	}
	return &XDelta{Path: path}
}

// Apply decodes payload against original into output. A non-zero exit is
// returned as ErrDeltaTool with the exit code and tool output attached.
func (x *XDelta) Apply(ctx context.Context, original, payload, output string) error {
	log := logger.Logger()
	log.Debugf("Exec: [%s -d -f -s %s %s %s]", x.Path, original, payload, output)

	cmd := exec.CommandContext(ctx, x.Path, "-d", "-f", "-s", original, payload, output)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := string(bytes.TrimSpace(out))
		if msg != "" {
			log.Infof(msg)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Errorf("%w: exit code %d: %s", ErrDeltaTool, exitErr.ExitCode(), msg)
		}
		return fmt.Errorf("%w: %v", ErrDeltaTool, err)
	}
	return nil
}
