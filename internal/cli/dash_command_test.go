package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestDashCommandRequiresTerminal(t *testing.T) {
	path := writeServiceFile(t, serviceYAML(t, freeAddr(t), probeTarget(t), ""))
	ctx := testContext(path, newMockLauncher())

	cmd := newDashCmd(ctx)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "interactive terminal") {
		t.Fatalf("expected interactive terminal error, got %v", err)
	}
}
