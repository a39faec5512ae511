package objectstore

import "testing"

func TestJoinKey(t *testing.T) {
	cases := []struct {
		prefix, relPath, want string
	}{
		{"sites/t1/s1/3", "index.html", "sites/t1/s1/3/index.html"},
		{"sites/t1/s1/3/", "/about.html", "sites/t1/s1/3/about.html"},
		{"sites/t1/s1/3", "assets/style.css", "sites/t1/s1/3/assets/style.css"},
	}
	for _, c := range cases {
		if got := JoinKey(c.prefix, c.relPath); got != c.want {
			t.Errorf("JoinKey(%q, %q) = %q, want %q", c.prefix, c.relPath, got, c.want)
		}
	}
}
