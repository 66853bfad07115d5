package router

import "testing"

func TestLongestPrefixWins(t *testing.T) {
	r := New[string]()
	r.Register("/", "root")
	r.Register("/api", "api")
	r.Register("/api/v2", "api-v2")

	cases := []struct {
		path string
		want string
	}{
		{"/", "root"},
		{"/anything", "root"},
		{"/api", "api"},
		{"/api/v1/users", "api"},
		{"/api/v2", "api-v2"},
		{"/api/v2/users", "api-v2"},
	}
	for _, c := range cases {
		_, got, found := r.Lookup(c.path)
		if !found {
			t.Fatalf("Lookup(%q): no match found", c.path)
		}
		if got != c.want {
			t.Fatalf("Lookup(%q) = %q, want %q", c.path, got, c.want)
		}
	}
}

func TestNoMatch(t *testing.T) {
	r := New[string]()
	r.Register("/api", "api")
	if _, _, found := r.Lookup("/other"); found {
		t.Fatal("expected no match for unregistered prefix")
	}
}

func TestRegistrationOrderIndependent(t *testing.T) {
	r := New[string]()
	r.Register("/api/v2", "api-v2")
	r.Register("/api", "api")
	_, got, found := r.Lookup("/api/v2/thing")
	if !found || got != "api-v2" {
		t.Fatalf("got (%q,%v), want (api-v2,true)", got, found)
	}
}
