package main

import (
	"errors"
	"strings"
	"testing"
)

// fakeGit answers git subcommands from a table keyed by the first argument.
func fakeGit(t *testing.T, answers map[string]string) {
	t.Helper()
	orig := git
	t.Cleanup(func() { git = orig })
	git = func(args ...string) (string, error) {
		key := strings.Join(args, " ")
		for prefix, out := range answers {
			if strings.HasPrefix(key, prefix) {
				return out, nil
			}
		}
		return "", errors.New("not a git repository")
	}
}

// ///////////////////////////////////////////////
// formatDescribe Tests
// ///////////////////////////////////////////////

func TestFormatDescribe(t *testing.T) {
	tests := []struct {
		desc string
		want string
	}{
		{"v0.1.0", "0.1.0"},
		{"v0.1.0-dirty", "0.1.0-dirty"},
		{"v2.0.0-beta.1", "2.0.0-beta.1"},
		{"v0.1.0-3-g1234567", "0.1.0-dev.3+g1234567"},
		{"v0.1.0-3-g1234567-dirty", "0.1.0-dev.3+g1234567.dirty"},
		{"v2.5.0-42-g9999999", "2.5.0-dev.42+g9999999"},
		{"v2.0.0-rc.1-7-gabcdef0", "2.0.0-rc.1-dev.7+gabcdef0"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := formatDescribe(tt.desc); got != tt.want {
				t.Errorf("formatDescribe(%q) = %q, want %q", tt.desc, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// buildVersion / buildID Tests
// ///////////////////////////////////////////////

func TestBuildVersion(t *testing.T) {
	tests := []struct {
		name    string
		answers map[string]string
		want    string
	}{
		{"tagged", map[string]string{"describe": "v1.4.0-2-gdeadbee"}, "1.4.0-dev.2+gdeadbee"},
		{"untagged clean", map[string]string{"rev-parse": "05ffee5", "status": ""}, "0.0.0-dev+05ffee5"},
		{"untagged dirty", map[string]string{"rev-parse": "05ffee5", "status": " M go.mod"}, "0.0.0-dev+05ffee5.dirty"},
		{"no repository", nil, "0.0.0-dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fakeGit(t, tt.answers)
			if got := buildVersion(); got != tt.want {
				t.Errorf("buildVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildID(t *testing.T) {
	fakeGit(t, map[string]string{"rev-parse HEAD": "0123456789abcdef0123456789abcdef01234567"})
	if got := buildID(); got != "0123456789abcdef0123456789abcdef01234567" {
		t.Errorf("buildID() = %q", got)
	}

	fakeGit(t, nil)
	if got := buildID(); got != "unknown" {
		t.Errorf("buildID() outside a repository = %q, want unknown", got)
	}
}
