package incres

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSearchPath(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.inc"), []byte("ORG $1000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New([]string{dir})
	path, err := r.Resolve("lib.inc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if path != filepath.Join(dir, "lib.inc") {
		t.Fatalf("Resolve = %q, want %q", path, filepath.Join(dir, "lib.inc"))
	}

	if _, err := r.Resolve("missing.inc"); err == nil {
		t.Fatal("expected an error for a file on no search path")
	}
}

func TestReadLinesSplitsOnNewlineAndStripsCR(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.asm")
	if err := os.WriteFile(path, []byte("ONE\r\nTWO\nTHREE"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	lines, err := r.ReadLines(path)
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	want := []string{"ONE", "TWO", "THREE"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("lines[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestReadBinaryRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte{0, 1, 2, 3, 4, 5}, 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(nil)
	b, err := r.ReadBinary(path, 2, 3)
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}
	if string(b) != string([]byte{2, 3, 4}) {
		t.Fatalf("ReadBinary = %v, want [2 3 4]", b)
	}

	all, err := r.ReadBinary(path, 0, 0)
	if err != nil {
		t.Fatalf("ReadBinary whole file: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("whole-file ReadBinary returned %d bytes, want 6", len(all))
	}
}

func TestResolveMerlinUsePrefix4HonorsEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lib.s"), []byte("NOP\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VASM_MERLIN_PREFIX_4", dir)

	r := New(nil)
	path, err := r.ResolveMerlinUse("4/lib.s")
	if err != nil {
		t.Fatalf("ResolveMerlinUse: %v", err)
	}
	if path != filepath.Join(dir, "lib.s") {
		t.Fatalf("ResolveMerlinUse = %q, want %q", path, filepath.Join(dir, "lib.s"))
	}
}

func TestResolveMerlinUseNoPrefixFallsThrough(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "plain.s"), []byte("NOP\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New([]string{dir})
	path, err := r.ResolveMerlinUse("plain.s")
	if err != nil {
		t.Fatalf("ResolveMerlinUse: %v", err)
	}
	if path != filepath.Join(dir, "plain.s") {
		t.Fatalf("ResolveMerlinUse = %q, want %q", path, filepath.Join(dir, "plain.s"))
	}
}
