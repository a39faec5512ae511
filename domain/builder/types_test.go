package builder

import "testing"

func TestPagePathToFile(t *testing.T) {
	cases := map[string]string{
		"/":     "index.html",
		"/a":    "a/index.html",
		"/a/b":  "a/b/index.html",
		"/a/b/": "a/b//index.html",
	}
	for path, want := range cases {
		if got := PagePathToFile(path); got != want {
			t.Errorf("PagePathToFile(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestArtifactPrefix(t *testing.T) {
	got := ArtifactPrefix("tenant-1", "site-1", 3)
	want := "sites/tenant-1/site-1/3"
	if got != want {
		t.Fatalf("ArtifactPrefix() = %q, want %q", got, want)
	}
}
