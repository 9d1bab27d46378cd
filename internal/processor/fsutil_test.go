package processor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPrepareDest(t *testing.T) {
	root := t.TempDir()

	dst, err := PrepareDest(root, "clips/day1/c_mp4_frame_0000.jpg")
	if err != nil {
		t.Fatalf("PrepareDest() error = %v", err)
	}
	if want := filepath.Join(root, "clips", "day1", "c_mp4_frame_0000.jpg"); dst != want {
		t.Errorf("dst = %q, want %q", dst, want)
	}
	if info, err := os.Stat(filepath.Dir(dst)); err != nil || !info.IsDir() {
		t.Errorf("parent directory not created: %v", err)
	}
}

func TestPrepareDest_RootRemoved(t *testing.T) {
	root := filepath.Join(t.TempDir(), "job")

	_, err := PrepareDest(root, "a.jpg")
	if !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("PrepareDest() error = %v, want ErrOutputMissing", err)
	}
	if !errors.Is(err, ErrWriteFailed) {
		t.Error("ErrOutputMissing should wrap ErrWriteFailed")
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("PrepareDest must not recreate a removed root")
	}
}

func TestWriteFile(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.jpg")

	n, err := WriteFile(dst, strings.NewReader("frame-bytes"))
	if err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if n != int64(len("frame-bytes")) {
		t.Errorf("WriteFile() n = %d", n)
	}

	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "frame-bytes" {
		t.Fatalf("ReadFile() = %q, %v", got, err)
	}

	entries, _ := os.ReadDir(filepath.Dir(dst))
	for _, e := range entries {
		if IsPartial(e.Name()) {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestWriteFile_MissingDir(t *testing.T) {
	_, err := WriteFile(filepath.Join(t.TempDir(), "gone", "out.jpg"), strings.NewReader("x"))
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("WriteFile() error = %v, want ErrWriteFailed", err)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	if err := os.WriteFile(src, []byte("png"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst, err := PrepareDest(filepath.Join(dir), "out/sub/a.png")
	if err != nil {
		t.Fatal(err)
	}

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile() error = %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone after move")
	}
	if got, _ := os.ReadFile(dst); string(got) != "png" {
		t.Errorf("dst content = %q", got)
	}
}

func TestIsPartial(t *testing.T) {
	if !IsPartial("/a/b/.partial-123") {
		t.Error("IsPartial should match temp files")
	}
	if IsPartial("/a/b/photo.jpg") {
		t.Error("IsPartial should not match regular files")
	}
}

func TestPrepareDest_NestedAfterRootRemoved(t *testing.T) {
	root := filepath.Join(t.TempDir(), "job")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := PrepareDest(root, "clips/a/b.jpg"); err != nil {
		t.Fatalf("PrepareDest() error = %v", err)
	}

	// A folder delete landing after the root was checked.
	if err := os.RemoveAll(root); err != nil {
		t.Fatal(err)
	}
	err := mkdirBelow(root, filepath.Join("clips", "day2"))
	if !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("mkdirBelow() error = %v, want ErrOutputMissing", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("removed root was recreated")
	}
}

func TestPrepareDest_FileInTheWay(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "clips"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := PrepareDest(root, "clips/a.jpg"); !errors.Is(err, ErrWriteFailed) {
		t.Errorf("PrepareDest() error = %v, want ErrWriteFailed", err)
	}
}

func TestWriteFile_KeepsExisting(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "clip_flv_frame_0000.jpg")
	if err := os.WriteFile(dst, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := WriteFile(dst, strings.NewReader("frame"))
	if !errors.Is(err, ErrOutputExists) || !errors.Is(err, ErrWriteFailed) {
		t.Fatalf("WriteFile() error = %v, want ErrOutputExists", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "original" {
		t.Errorf("dst content = %q, want original", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(dst))
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the original", len(entries))
	}
}

func TestMoveFile_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staged.png")
	dst := filepath.Join(dir, "a.png")
	for path, data := range map[string]string{src: "new", dst: "old"} {
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := MoveFile(src, dst); !errors.Is(err, ErrOutputExists) {
		t.Fatalf("MoveFile() error = %v, want ErrOutputExists", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "old" {
		t.Errorf("dst content = %q, want old", got)
	}
}
