package artifacts

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

var now = time.Date(2024, 3, 7, 9, 5, 2, 123_456_789, time.UTC)

func TestConstructFilename(t *testing.T) {
	got := ConstructFilename("screenshots", "LoginTest", "Host", "html", now)

	want := "screenshots/LoginTest/20240307/090502.123-Host.html"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestConstructFilename_SanitizesBase(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"Login Page", "Login_Page"},
		{"a  / b", "a_b"},
		{"name_ .png", "name.png"},
		{"name. _x", "name.x"},
		{"ümlaut-ok.1", "_mlaut-ok.1"},
	}

	for _, tt := range tests {
		got := ConstructFilename("d", "t", tt.base, ".png", now)
		if want := "d/t/20240307/090502.123-" + tt.want + ".png"; got != want {
			t.Errorf("base %q: expected %q, got %q", tt.base, want, got)
		}
	}
}

func TestConstructFilename_LongNames(t *testing.T) {
	long := strings.Repeat("Very", 50) + "LoginTest"

	got := ConstructFilename("screenshots", long, long, "html", now)

	pattern := regexp.MustCompile(`^screenshots/(\w+)/\d{8}/\d{6}\.\d{3}-(\w+)\.html$`)
	m := pattern.FindStringSubmatch(got)
	if m == nil {
		t.Fatalf("unexpected file name %q", got)
	}
	if len(m[1]) != maxNameLen {
		t.Errorf("expected test case shortened to %d, got %d", maxNameLen, len(m[1]))
	}
	last := got[strings.LastIndex(got, "/")+1:]
	if len(last) != maxNameLen {
		t.Errorf("expected file name of %d characters, got %d: %q", maxNameLen, len(last), last)
	}
}
