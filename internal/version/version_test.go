package version

import "testing"

func TestCurrent(t *testing.T) {
	b := Current()
	if b.Version == "" || b.Commit == "" || b.Date == "" {
		t.Fatalf("build metadata must not be empty: %+v", b)
	}
	if b.Version != GetVersion() {
		t.Fatalf("Current().Version = %q, GetVersion() = %q", b.Version, GetVersion())
	}
}

func TestBuildString(t *testing.T) {
	b := Build{Version: "v1.4.0", Commit: "3f2a9c1", Date: "2026-10-18"}
	if got, want := b.String(), "exopet-api v1.4.0 (commit 3f2a9c1, built 2026-10-18)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != ServiceName+"/"+GetVersion() {
		t.Fatalf("unexpected user agent %q", got)
	}
}
