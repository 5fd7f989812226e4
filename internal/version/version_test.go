package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()
	Version = "1.4.0"

	if got := Short(); got != "1.4.0" {
		t.Errorf("Short() = %q, want %q", got, "1.4.0")
	}
	if got := Info(); !strings.HasPrefix(got, "netsweep 1.4.0 ") {
		t.Errorf("Info() = %q", got)
	}
	if got := Map()["version"]; got != "1.4.0" {
		t.Errorf("Map()[version] = %q", got)
	}
}
