// Package main prints the version stamp for a cadence build, for use in
// ldflags:
//
//	go build -ldflags "$(go run ./cmd/buildver -ldflags)" ./cmd/cadence
//
// Version format depends on git state:
//
//	No tags, clean:     0.0.0-dev+05ffee5
//	No tags, dirty:     0.0.0-dev+05ffee5.dirty
//	On tag v0.1.0:      0.1.0
//	Dirty tag:          0.1.0-dirty
//	3 past v0.1.0:      0.1.0-dev.3+g1234567
package main

import (
	"flag"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// baseVersion prefixes untagged development builds.
const baseVersion = "0.0.0"

// git runs a git subcommand and returns its trimmed output; replaced in tests.
var git = func(args ...string) (string, error) {
	out, err := exec.Command("git", args...).Output()
	return strings.TrimSpace(string(out)), err
}

func main() {
	ldflags := flag.Bool("ldflags", false, "Print -X flags for main.version and main.buildID")
	flag.Parse()

	v := buildVersion()
	if *ldflags {
		fmt.Printf("-X main.version=%s -X main.buildID=%s", v, buildID())
		return
	}
	fmt.Print(v)
}

// buildVersion describes HEAD against v-prefixed tags, falling back to the
// abbreviated commit hash when there are none.
func buildVersion() string {
	if desc, err := git("describe", "--tags", "--match", "v*", "--dirty"); err == nil && desc != "" {
		return formatDescribe(desc)
	}

	hash, err := git("rev-parse", "--short=7", "HEAD")
	if err != nil || hash == "" {
		return baseVersion + "-dev"
	}
	if isDirty() {
		return baseVersion + "-dev+" + hash + ".dirty"
	}
	return baseVersion + "-dev+" + hash
}

// buildID returns the full commit hash, or "unknown" outside a repository.
func buildID() string {
	id, err := git("rev-parse", "HEAD")
	if err != nil || id == "" {
		return "unknown"
	}
	return id
}

// describeRe splits git describe output: tag, commits past it, hash, dirty.
var describeRe = regexp.MustCompile(`^v?(.+?)(?:-(\d+)-(g[0-9a-f]+))?(-dirty)?$`)

// formatDescribe turns git describe output such as "v0.1.0-3-g1234567-dirty"
// into a SemVer string.
func formatDescribe(desc string) string {
	m := describeRe.FindStringSubmatch(desc)
	if m == nil {
		return desc
	}
	tag, n, hash, dirty := m[1], m[2], m[3], m[4] != ""

	if n == "" {
		if dirty {
			return tag + "-dirty"
		}
		return tag
	}
	meta := hash
	if dirty {
		meta += ".dirty"
	}
	return fmt.Sprintf("%s-dev.%s+%s", tag, n, meta)
}

// isDirty reports whether the working tree has uncommitted changes.
func isDirty() bool {
	out, err := git("status", "--porcelain")
	return err == nil && out != ""
}
