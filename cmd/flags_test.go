package cmd

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newFlagCommand() *cobra.Command {
	c := &cobra.Command{Use: "purge"}
	c.Flags().Bool("sessions", false, "")
	c.Flags().Int("port", 8080, "")
	c.Flags().String("session", "", "")
	return c
}

func TestMustGetFlags(t *testing.T) {
	c := newFlagCommand()
	if err := c.Flags().Parse([]string{"--sessions", "--port=9090", "--session=lecture-1"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if !mustGetBool(c, "sessions") {
		t.Error("expected --sessions to be set")
	}
	if got := mustGetInt(c, "port"); got != 9090 {
		t.Errorf("port = %d, want 9090", got)
	}
	if got := mustGetString(c, "session"); got != "lecture-1" {
		t.Errorf("session = %q, want lecture-1", got)
	}
}

func TestMustGetFlags_PanicsOnUnregistered(t *testing.T) {
	c := newFlagCommand()
	defer func() {
		r := recover()
		msg, _ := r.(string)
		if !strings.Contains(msg, "purge: flag --reports") {
			t.Errorf("unexpected panic %v", r)
		}
	}()
	mustGetBool(c, "reports")
}

func TestMustGetFlags_PanicsOnWrongType(t *testing.T) {
	c := newFlagCommand()
	defer func() {
		if recover() == nil {
			t.Error("expected a panic reading --port as a string")
		}
	}()
	mustGetString(c, "port")
}
