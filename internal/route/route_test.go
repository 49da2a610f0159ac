package route

import (
	"net/url"
	"testing"

	"downloads-gateway/internal/config"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func mustUpstream(t *testing.T, raw string) Upstream {
	t.Helper()
	up, err := ParseUpstream(raw)
	if err != nil {
		t.Fatalf("ParseUpstream(%q): %v", raw, err)
	}
	return up
}

func TestResolve_LongestPrefixWins(t *testing.T) {
	table, err := New([]Route{
		{Prefix: "cdn.x.tld", Upstream: mustUpstream(t, "s3://general")},
		{Prefix: "cdn.x.tld/images", Upstream: mustUpstream(t, "s3://images")},
		{Prefix: "other.tld", Upstream: mustUpstream(t, "https://origin.example")},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		target     string
		wantOK     bool
		wantPrefix string
	}{
		{"https://cdn.x.tld/images/a.jpg", true, "cdn.x.tld/images"},
		{"https://cdn.x.tld/docs/a.pdf", true, "cdn.x.tld"},
		{"https://cdn.x.tld/imagesX/a.jpg", true, "cdn.x.tld/images"},
		{"https://other.tld/a", true, "other.tld"},
		{"https://unknown.tld/a", false, ""},
		{"https://x.tld/cdn.x.tld", false, ""},
		{"https://CDN.X.tld:443/images/a.jpg", true, "cdn.x.tld/images"},
		{"http://cdn.x.tld:80/docs/a.pdf", true, "cdn.x.tld"},
		{"https://cdn.x.tld/Images/a.jpg", true, "cdn.x.tld"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			r, ok := table.Resolve(mustURL(t, tt.target))
			if ok != tt.wantOK {
				t.Fatalf("Resolve() ok = %v, want %v", ok, tt.wantOK)
			}
			if r.Prefix != tt.wantPrefix {
				t.Errorf("Resolve() prefix = %q, want %q", r.Prefix, tt.wantPrefix)
			}
		})
	}
}

func TestResolve_InsertionOrderIrrelevant(t *testing.T) {
	a, _ := New([]Route{
		{Prefix: "cdn.x.tld/images", Upstream: mustUpstream(t, "s3://images")},
		{Prefix: "cdn.x.tld", Upstream: mustUpstream(t, "s3://general")},
	})
	b, _ := New([]Route{
		{Prefix: "cdn.x.tld", Upstream: mustUpstream(t, "s3://general")},
		{Prefix: "cdn.x.tld/images", Upstream: mustUpstream(t, "s3://images")},
	})

	target := mustURL(t, "https://cdn.x.tld/images/a.jpg")
	ra, _ := a.Resolve(target)
	rb, _ := b.Resolve(target)
	if ra.Upstream.Bucket != "images" || rb.Upstream.Bucket != "images" {
		t.Errorf("buckets = %q, %q, want images", ra.Upstream.Bucket, rb.Upstream.Bucket)
	}
}

func TestResolve_EqualLengthLexicalOrder(t *testing.T) {
	table, err := New([]Route{
		{Prefix: "cdn.x.tld/b", Upstream: mustUpstream(t, "s3://b")},
		{Prefix: "cdn.x.tld/a", Upstream: mustUpstream(t, "s3://a")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if table.routes[0].Prefix != "cdn.x.tld/a" {
		t.Errorf("first route = %q, want cdn.x.tld/a", table.routes[0].Prefix)
	}
}

func TestNew_LowercasesPrefixHost(t *testing.T) {
	table, err := New([]Route{
		{Prefix: "CDN.x.tld/Images", Upstream: mustUpstream(t, "s3://images")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := table.routes[0].Prefix; got != "cdn.x.tld/Images" {
		t.Errorf("prefix = %q, want cdn.x.tld/Images", got)
	}

	if _, err := New([]Route{
		{Prefix: "cdn.x.tld", Upstream: mustUpstream(t, "s3://a")},
		{Prefix: "CDN.X.TLD", Upstream: mustUpstream(t, "s3://b")},
	}); err == nil {
		t.Error("New() expected duplicate prefix error for hosts differing in case")
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		scheme string
		host   string
		want   string
	}{
		{"https", "CDN.X.tld", "cdn.x.tld"},
		{"https", "cdn.x.tld:443", "cdn.x.tld"},
		{"http", "cdn.x.tld:80", "cdn.x.tld"},
		{"http", "cdn.x.tld:443", "cdn.x.tld:443"},
		{"https", "cdn.x.tld:80", "cdn.x.tld:80"},
		{"http", "localhost:8000", "localhost:8000"},
		{"https", "[::1]:443", "[::1]"},
		{"https", "[::1]:8443", "[::1]:8443"},
		{"https", "[::1]", "[::1]"},
	}

	for _, tt := range tests {
		t.Run(tt.scheme+"://"+tt.host, func(t *testing.T) {
			if got := NormalizeHost(tt.scheme, tt.host); got != tt.want {
				t.Errorf("NormalizeHost(%q, %q) = %q, want %q", tt.scheme, tt.host, got, tt.want)
			}
		})
	}
}

func TestNew_Invalid(t *testing.T) {
	up := Upstream{Kind: KindObjectStore, Bucket: "b"}

	tests := []struct {
		name   string
		routes []Route
	}{
		{"empty table", nil},
		{"empty prefix", []Route{{Prefix: "", Upstream: up}}},
		{"duplicate prefix", []Route{{Prefix: "a", Upstream: up}, {Prefix: "a", Upstream: up}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.routes); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestNewTable_FromConfig(t *testing.T) {
	cfg := &config.Config{Routes: []config.RouteConfig{
		{Prefix: "cdn.elifesciences.org", Upstream: "s3://prod-elife-published"},
		{Prefix: "iiif.elifesciences.org", Upstream: "https://iiif-origin.internal"},
	}}
	table, err := NewTable(cfg)
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	if table.Len() != 2 {
		t.Errorf("Len() = %d, want 2", table.Len())
	}

	cfg.Routes = append(cfg.Routes, config.RouteConfig{Prefix: "bad", Upstream: "ftp://x"})
	if _, err := NewTable(cfg); err == nil {
		t.Error("NewTable() expected error for unsupported scheme")
	}
}

func TestParseUpstream(t *testing.T) {
	tests := []struct {
		raw        string
		wantKind   Kind
		wantErr    bool
		wantBkt    string
		wantPfx    string
		wantOrigin string
	}{
		{raw: "s3://bucket", wantKind: KindObjectStore, wantBkt: "bucket"},
		{raw: "s3://bucket/some/prefix/", wantKind: KindObjectStore, wantBkt: "bucket", wantPfx: "some/prefix"},
		{raw: "https://origin.example", wantKind: KindHTTPOrigin, wantOrigin: "https://origin.example"},
		{raw: "http://origin.example:8080/base", wantKind: KindHTTPOrigin, wantOrigin: "http://origin.example:8080/base"},
		{raw: "ftp://origin.example", wantErr: true},
		{raw: "s3://", wantErr: true},
		{raw: "origin.example", wantErr: true},
		{raw: "://bad", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			up, err := ParseUpstream(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUpstream() error = %v", err)
			}
			if up.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", up.Kind, tt.wantKind)
			}
			if up.Bucket != tt.wantBkt || up.KeyPrefix != tt.wantPfx {
				t.Errorf("Bucket/KeyPrefix = %q/%q, want %q/%q", up.Bucket, up.KeyPrefix, tt.wantBkt, tt.wantPfx)
			}
			if tt.wantOrigin != "" && up.BaseURL.String() != tt.wantOrigin {
				t.Errorf("BaseURL = %q, want %q", up.BaseURL, tt.wantOrigin)
			}
		})
	}
}

func TestUpstream_ObjectKey(t *testing.T) {
	tests := []struct {
		up   Upstream
		path string
		want string
	}{
		{Upstream{Kind: KindObjectStore, Bucket: "b"}, "/articles/1/a.pdf", "articles/1/a.pdf"},
		{Upstream{Kind: KindObjectStore, Bucket: "b", KeyPrefix: "published"}, "/articles/a.pdf", "published/articles/a.pdf"},
	}
	for _, tt := range tests {
		if got := tt.up.ObjectKey(tt.path); got != tt.want {
			t.Errorf("ObjectKey(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestUpstream_OriginURL(t *testing.T) {
	up := mustUpstream(t, "http://origin.internal:8080/ignored")
	target := mustURL(t, "https://cdn.x.tld/images/a%20b.jpg?v=2#frag")

	got := up.OriginURL(target, "v=2").String()
	want := "http://origin.internal:8080/images/a%20b.jpg?v=2"
	if got != want {
		t.Errorf("OriginURL() = %q, want %q", got, want)
	}

	direct := DirectOrigin(target).OriginURL(target, "")
	if direct.String() != "https://cdn.x.tld/images/a%20b.jpg" {
		t.Errorf("DirectOrigin OriginURL() = %q", direct.String())
	}
}
