package transfer

import "testing"

func TestRemotePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a/b/c.txt", "upload/c.txt"},
		{"c.txt", "upload/c.txt"},
		{"/var/data/report.xml", "upload/report.xml"},
		{"./rel/name with space.csv", "upload/name with space.csv"},
		{"dir/", "upload/"},
	}
	for _, tt := range tests {
		if got := RemotePath(tt.in); got != tt.want {
			t.Errorf("RemotePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBaseName(t *testing.T) {
	if got := BaseName("x"); got != "x" {
		t.Errorf("BaseName(x) = %q", got)
	}
	if got := BaseName(""); got != "" {
		t.Errorf("BaseName(\"\") = %q", got)
	}
}
