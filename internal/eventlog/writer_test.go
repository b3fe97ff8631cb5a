package eventlog

import (
	"strings"
	"testing"
)

func TestWriterWriteThenReadBack(t *testing.T) {
	w := NewWriter(t.TempDir(), 30)
	defer w.Close()

	if err := w.Write("bmc", "discovered satellite 0x24"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write("bmc", "sensor event on 0x24"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	content, err := w.GetCurrentLogContent("bmc")
	if err != nil {
		t.Fatalf("GetCurrentLogContent: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "discovered satellite 0x24") || !strings.Contains(text, "sensor event on 0x24") {
		t.Fatalf("got content %q, want both records present", text)
	}
}

func TestWriterKeysAreIsolated(t *testing.T) {
	w := NewWriter(t.TempDir(), 30)
	defer w.Close()

	w.Write("bmc", "a")
	w.Write("satellite-0x24", "b")

	bmcContent, _ := w.GetCurrentLogContent("bmc")
	if strings.Contains(string(bmcContent), "b") {
		t.Fatal("expected per-key files to stay isolated")
	}
}

func TestWriterRotateStartsAFreshFile(t *testing.T) {
	w := NewWriter(t.TempDir(), 30)
	defer w.Close()

	w.Write("bmc", "before rotation")
	if err := w.Rotate("bmc"); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	w.Write("bmc", "after rotation")

	content, err := w.GetCurrentLogContent("bmc")
	if err != nil {
		t.Fatalf("GetCurrentLogContent: %v", err)
	}
	if strings.Contains(string(content), "before rotation") {
		t.Fatal("expected rotation to start a fresh current.log")
	}
	if !strings.Contains(string(content), "after rotation") {
		t.Fatal("expected the post-rotation write to land in the new file")
	}
}

func TestWriterListLogsReturnsRotatedFiles(t *testing.T) {
	w := NewWriter(t.TempDir(), 30)
	defer w.Close()

	w.Write("bmc", "one")
	w.Rotate("bmc")
	w.Write("bmc", "two")

	names, err := w.ListLogs("bmc")
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("got %d log files, want 2 (one rotated away, one current)", len(names))
	}
}

func TestWriterCanRotateEnforcesCooldown(t *testing.T) {
	w := NewWriter(t.TempDir(), 30)
	defer w.Close()

	if !w.CanRotate("bmc") {
		t.Fatal("expected a never-rotated key to be rotatable immediately")
	}
	w.Rotate("bmc")
	if w.CanRotate("bmc") {
		t.Fatal("expected the cooldown to block an immediate second rotation")
	}
}
