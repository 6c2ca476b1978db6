package logflags

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func reset() {
	any, dap, miWire, processes, uart = false, false, false, false, false
	logOut = nil
}

func TestMakeFlaggableLogger_withFlagFalse(t *testing.T) {
	defer reset()
	actual := makeFlaggableLogger(false, Fields{"foo": "bar"})
	if actual.Logger.Level != logrus.ErrorLevel {
		t.Fatalf("expected level to be <%v>; but was <%v>", logrus.ErrorLevel, actual.Logger.Level)
	}
	if len(actual.Data) != 1 || actual.Data["foo"] != "bar" {
		t.Fatalf("expected actual.Data to be {'foo':'bar'}; but was <%v>", actual.Data)
	}
}

func TestMakeFlaggableLogger_withFlagTrue(t *testing.T) {
	defer reset()
	actual := makeFlaggableLogger(true, Fields{"foo": "bar"})
	if actual.Logger.Level != logrus.DebugLevel {
		t.Fatalf("expected level to be <%v>; but was <%v>", logrus.DebugLevel, actual.Logger.Level)
	}
}

func TestMakeLogger_withLogOut(t *testing.T) {
	defer reset()
	out := &bufferWriter{}
	logOut = out

	actual := makeLogger(logrus.DebugLevel, Fields{"layer": "mi"})
	if actual.Logger.Out != logOut {
		t.Fatalf("expected Out to be <%v>; but was <%v>", logOut, actual.Logger.Out)
	}
	if actual.Logger.Formatter != textFormatterInstance {
		t.Fatalf("expected Formatter to be <%v>; but was <%v>", textFormatterInstance, actual.Logger.Formatter)
	}
	actual.Debug("-> ^done")
	if got := out.String(); !strings.Contains(got, "layer=mi -> ^done\n") {
		t.Fatalf("unexpected log line %q", got)
	}
}

func TestSetup(t *testing.T) {
	defer reset()
	if err := Setup(false, "mi", ""); err != errLogstrWithoutLog {
		t.Fatalf("expected %v, got %v", errLogstrWithoutLog, err)
	}
	if err := Setup(true, "mi,uart", ""); err != nil {
		t.Fatal(err)
	}
	if !Any() || !MIWire() || !UART() || DAP() || Processes() {
		t.Fatalf("wrong flags: any=%v mi=%v uart=%v dap=%v process=%v", any, miWire, uart, dap, processes)
	}
	reset()
	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !DAP() {
		t.Fatal("dap logging should be the default")
	}
	if err := Setup(true, "bogus", ""); err == nil {
		t.Fatal("expected error for unknown log output")
	}
}

type bufferWriter struct {
	bytes.Buffer
}

func (bw *bufferWriter) Close() error {
	return nil
}
