package api

import (
	"reflect"
	"testing"
)

func TestResourcePath(t *testing.T) {
	cases := []struct {
		name string
		path string
		want []string
	}{
		{name: "mount only", path: "/dosepics", want: []string{}},
		{name: "collection", path: "/dosepics/users", want: []string{"users"}},
		{name: "resource", path: "/dosepics/users/alice", want: []string{"users", "alice"}},
		{name: "subresource", path: "/dosepics/pics/7/thumb", want: []string{"pics", "7", "thumb"}},
		{name: "trailing slash", path: "/dosepics/users/", want: []string{"users"}},
		{name: "duplicate separators", path: "//dosepics///users//alice", want: []string{"users", "alice"}},
		{name: "root", path: "/", want: nil},
		{name: "empty", path: "", want: nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := resourcePath(tc.path)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("resourcePath(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func TestMountPrefix(t *testing.T) {
	cases := map[string]string{
		"/dosepics/users/alice": "/dosepics",
		"//api///pics":          "/api",
		"/":                     "",
		"":                      "",
	}
	for path, want := range cases {
		if got := mountPrefix(path); got != want {
			t.Fatalf("mountPrefix(%q) = %q, want %q", path, got, want)
		}
	}
}
