package version

import (
	"regexp"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	v := Get()
	if !regexp.MustCompile(`^\d+\.\d+\.\d+$`).MatchString(v) {
		t.Errorf("Get() = %q, want semver", v)
	}
}

func TestBanner(t *testing.T) {
	if b := Banner(); !strings.HasPrefix(b, "phasegate "+Get()+" (go") {
		t.Errorf("Banner() = %q", b)
	}
}
