package term_test

import (
	"os"
	"testing"

	"github.com/bobuhiro11/gokvm-arm64/term"
)

func TestIsTerminalFalseForRegularFile(t *testing.T) {
	t.Parallel()

	f, err := os.CreateTemp(t.TempDir(), "notatty")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if term.IsTerminal(f.Fd()) {
		t.Fatal("IsTerminal(regular file) = true, want false")
	}
}
