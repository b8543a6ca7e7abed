package version

import "testing"

func TestDefaults(t *testing.T) {
	if !IsDev() {
		t.Errorf("default Version = %q, want a dev build", Version)
	}
	if GitCommit != "unknown" {
		t.Errorf("default GitCommit = %q, want %q", GitCommit, "unknown")
	}
}

func TestStamped(t *testing.T) {
	saved := [3]string{Version, GitCommit, BuildDate}
	t.Cleanup(func() { Version, GitCommit, BuildDate = saved[0], saved[1], saved[2] })

	Version, GitCommit, BuildDate = "v1.2.0", "abc1234", "2026-10-01T00:00:00Z"
	if IsDev() {
		t.Error("IsDev() on a stamped build")
	}
	if got, want := Info(), "v1.2.0 (abc1234) built 2026-10-01T00:00:00Z"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	if got := UserAgent(); got != "provtest/v1.2.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}
