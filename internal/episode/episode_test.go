package episode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNextLocalEmptyAndMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "new", "series")
	next, err := NextLocal(dir)
	if err != nil {
		t.Fatalf("NextLocal: %v", err)
	}
	if next != 1 {
		t.Fatalf("next = %d, want 1", next)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestNextLocalUsesHighestMarker(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Show_Ep_01.mp4")
	touch(t, dir, "Show_Ep_07.mkv")
	touch(t, dir, "show.ep-3.MP4")
	touch(t, dir, "Show_Ep_99.txt")
	touch(t, dir, "Show_Ep_12.mkv.aria2")
	touch(t, dir, "cover.jpg")
	if err := os.Mkdir(filepath.Join(dir, "Show_Ep_50.mkv"), 0o755); err != nil {
		t.Fatal(err)
	}

	next, err := NextLocal(dir)
	if err != nil {
		t.Fatalf("NextLocal: %v", err)
	}
	if next != 8 {
		t.Fatalf("next = %d, want 8", next)
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name         string
		next, passed int
		cont         bool
		remote       int
		final        int
	}{
		{"plain", 5, 0, false, 5, 5},
		{"plain ignores passed", 5, 12, false, 5, 5},
		{"continuation first fetch", 1, 12, true, 13, 13},
		{"continuation disk behind offset", 10, 12, true, 13, 13},
		{"continuation boundary D equals P", 13, 12, true, 1, 13},
		{"continuation caught up", 20, 12, true, 8, 20},
		{"continuation zero offset", 4, 0, true, 4, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			remote, final := Resolve(tc.next, tc.passed, tc.cont)
			if remote != tc.remote || final != tc.final {
				t.Fatalf("Resolve(%d,%d,%t) = (%d,%d), want (%d,%d)",
					tc.next, tc.passed, tc.cont, remote, final, tc.remote, tc.final)
			}
			if tc.cont && final < tc.passed+1 {
				t.Fatalf("final %d below passed+1", final)
			}
			if !tc.cont && final != tc.next {
				t.Fatalf("final %d != next on disk %d", final, tc.next)
			}
		})
	}
}

func TestCheckInvariant(t *testing.T) {
	if err := CheckInvariant(13, 12, true, 1, 13); err != nil {
		t.Fatalf("valid pair rejected: %v", err)
	}
	if err := CheckInvariant(8, 0, false, 7, 7); err == nil {
		t.Fatal("regressing final index accepted")
	}
	if err := CheckInvariant(20, 12, true, 20, 20); err == nil {
		t.Fatal("wrong remote index accepted")
	}
}

func TestFinalFilename(t *testing.T) {
	cases := []struct {
		name  string
		url   string
		root  string
		final int
		want  string
	}{
		{"rewrite marker", "https://cdn.example/files/Show_Ep_3_SUB_ITA.mp4?token=abc", "", 15, "Show_Ep_15_SUB_ITA.mp4"},
		{"configured root", "https://cdn.example/Other_Name_Ep_003.mkv", "My_Show", 4, "My_Show_Ep_04.mkv"},
		{"case insensitive", "https://cdn.example/Show_ep_1.mp4", "", 2, "Show_ep_02.mp4"},
		{"synthesized from stem", "https://cdn.example/video.mkv", "", 7, "video_Ep_07.mkv"},
		{"synthesized with root", "https://cdn.example/video", "Root", 7, "Root_Ep_07.mp4"},
		{"empty name", "https://cdn.example/", "", 1, "Episode_Ep_01.mp4"},
		{"digits only in ext", "https://cdn.example/Show_Ep_.mp4", "", 3, "Show_Ep_03.mp4"},
		{"three digits", "https://cdn.example/Show_Ep_1.mp4", "", 123, "Show_Ep_123.mp4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FinalFilename(tc.url, tc.root, tc.final)
			if got != tc.want {
				t.Fatalf("FinalFilename(%q,%q,%d) = %q, want %q", tc.url, tc.root, tc.final, got, tc.want)
			}
		})
	}
}

func TestFinalFilenameIdempotent(t *testing.T) {
	inputs := []struct {
		url  string
		root string
	}{
		{"https://cdn.example/Show_Ep_3_SUB_ITA.mp4", ""},
		{"https://cdn.example/Other_Ep_3.mkv", "Root"},
		{"https://cdn.example/video.mkv", ""},
		{"https://cdn.example/show-ep-5.mp4", ""},
	}
	for _, in := range inputs {
		first := FinalFilename(in.url, in.root, 9)
		second := FinalFilename("https://cdn.example/"+first, in.root, 9)
		if first != second {
			t.Errorf("not idempotent for %q: %q then %q", in.url, first, second)
		}
		if !strings.Contains(first, "_Ep_09") {
			t.Errorf("%q does not carry the final index", first)
		}
	}
}
