package version

import (
	"strings"
	"testing"
)

func TestVersionInfo(t *testing.T) {
	oldCommit := GitCommit
	defer func() { GitCommit = oldCommit }()

	GitCommit = "0123456789abcdef"
	full := GetFullVersion()
	if !strings.HasPrefix(full, Version+"-0123456") {
		t.Errorf("Unexpected full version %q", full)
	}

	info := GetVersionInfo("Wav2img")
	if !strings.HasPrefix(info, "Wav2img version "+Version+" (commit 0123456)") {
		t.Errorf("Unexpected version info %q", info)
	}
	if !strings.Contains(info, "\nGo: ") {
		t.Errorf("Expected Go version line in %q", info)
	}
}
