package session

import "testing"

func TestCanonicalContextPath(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"/shop", "_shop"},
		{"/shop/cart", "_shop_cart"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		if got := CanonicalContextPath(tc.raw); got != tc.want {
			t.Fatalf("CanonicalContextPath(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCanonicalVirtualHost(t *testing.T) {
	if got := CanonicalVirtualHost(""); got != DefaultVirtualHost {
		t.Fatalf("blank vhost = %q, want %q", got, DefaultVirtualHost)
	}
	if got := CanonicalVirtualHost("  "); got != DefaultVirtualHost {
		t.Fatalf("whitespace vhost = %q, want %q", got, DefaultVirtualHost)
	}
	if got := CanonicalVirtualHost("app.example.com"); got != "app.example.com" {
		t.Fatalf("vhost = %q, want passthrough", got)
	}
}

func TestContextEqualityIgnoresNode(t *testing.T) {
	a := NewContext("/", "0.0.0.0", "node-1")
	b := NewContext("", "", "node-2")
	if !a.Equal(b) {
		t.Fatal("root scopes with different node ids should be equal")
	}

	c := NewContext("/shop", "0.0.0.0", "node-1")
	if a.Equal(c) {
		t.Fatal("different context paths should not be equal")
	}

	d := NewContext("/", "app.example.com", "node-1")
	if a.Equal(d) {
		t.Fatal("different virtual hosts should not be equal")
	}
}

func TestContextEquivalentConstruction(t *testing.T) {
	// "" and "/" address the same root context after canonicalization.
	fromSlash := NewContext("/", "0.0.0.0", "node-1")
	fromEmpty := NewContext("", "0.0.0.0", "node-1")
	if fromSlash.ContextPath() != fromEmpty.ContextPath() {
		t.Fatalf("root canonical paths differ: %q vs %q",
			fromSlash.ContextPath(), fromEmpty.ContextPath())
	}
}

func TestDataExpired(t *testing.T) {
	now := int64(10_000)

	never := Data{Expiry: NeverExpires}
	if never.Expired(now) {
		t.Fatal("immortal session reported expired")
	}

	boundary := Data{Expiry: now}
	if !boundary.Expired(now) {
		t.Fatal("session expiring exactly at the boundary should be eligible")
	}

	future := Data{Expiry: now + 1}
	if future.Expired(now) {
		t.Fatal("future expiry reported expired")
	}
}
