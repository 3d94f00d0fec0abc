package profile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirHonoursHome(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("HUDDLE_HOME", tmp)

	got := Dir("main")
	want := filepath.Join(tmp, "profiles", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestSocketPath(t *testing.T) {
	got := SocketPath("test")
	if !strings.HasSuffix(got, filepath.Join("profiles", "test", "huddled.sock")) {
		t.Errorf("SocketPath(test) = %q, want suffix profiles/test/huddled.sock", got)
	}
}

func TestEnsureDirAndList(t *testing.T) {
	t.Setenv("HUDDLE_HOME", t.TempDir())

	if err := EnsureDir("alpha"); err != nil {
		t.Fatal(err)
	}
	if err := EnsureDir("beta"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(RecordingsDir("alpha"))
	if err != nil {
		t.Fatalf("recordings dir not created: %v", err)
	}
	if info.Mode().Perm() != 0700 {
		t.Errorf("recordings dir perm = %o, want 0700", info.Mode().Perm())
	}

	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List() = %v, want [alpha beta]", names)
	}
}

func TestListWithoutProfiles(t *testing.T) {
	t.Setenv("HUDDLE_HOME", t.TempDir())
	names, err := List()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 0 {
		t.Errorf("List() = %v, want empty", names)
	}
}
