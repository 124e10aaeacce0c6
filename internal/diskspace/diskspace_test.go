package diskspace

import "testing"

func TestFree(t *testing.T) {
	free, err := Free(t.TempDir())
	if err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if free == 0 {
		t.Errorf("Expected some free space in the temp dir")
	}
}
