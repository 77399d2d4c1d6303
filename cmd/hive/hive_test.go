package main

import (
	"testing"

	"github.com/creachadair/hive/markup"
	"github.com/google/go-cmp/cmp"
)

func TestParseArg(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"true", true},
		{"false", false},
		{"25", 25.0},
		{"-1.5e3", -1500.0},
		{"hello", "hello"},
		{"True", "True"},
		{"<oops", "<oops"},
		{"", ""},
	}
	for _, tc := range tests {
		if diff := cmp.Diff(tc.want, parseArg(tc.input)); diff != "" {
			t.Errorf("parseArg(%q) (-want, +got):\n%s", tc.input, diff)
		}
	}

	const frag = `<point x="1" y="2"/>`
	n, ok := parseArg(frag).(*markup.Node)
	if !ok || n.String() != frag {
		t.Errorf("parseArg(%q): got %v, want a fragment", frag, n)
	}
}

func TestSplitAddr(t *testing.T) {
	host, port, err := splitAddr("example.com:37000")
	if err != nil || host != "example.com" || port != 37000 {
		t.Errorf("splitAddr: got %q, %d, %v", host, port, err)
	}
	for _, bad := range []string{"example.com", "host:http", "host:70000"} {
		if _, _, err := splitAddr(bad); err == nil {
			t.Errorf("splitAddr(%q): got nil error", bad)
		}
	}
}
