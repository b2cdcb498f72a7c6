//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Default target executed when none is specified.
var Default = CI

// CI runs format, lint, test and build in order.
func CI() {
	mg.SerialDeps(Format, Lint, Test, Build)
}

// Format updates Go sources using gofmt.
func Format() error {
	return sh.RunV("go", "fmt", "./...")
}

// Lint executes go vet across the module.
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Test runs the full test suite.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Build compiles every package, then produces the ca binary with the
// version stamped from the latest git tag.
func Build() error {
	if err := sh.RunV("go", "build", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", "ca", "./cmd/ca")
}

// Install builds the stamped ca binary into GOPATH/bin.
func Install() error {
	return sh.RunV("go", "install", "-ldflags", ldflags(), "./cmd/ca")
}

func ldflags() string {
	return fmt.Sprintf("-X github.com/bkyoung/change-attribution/internal/version.version=%s", version())
}

// version reports the latest tag, with a -dirty suffix when the working
// tree has local changes or HEAD has moved past the tag.
func version() string {
	tag, err := sh.Output("git", "describe", "--tags", "--abbrev=0")
	if err != nil || strings.TrimSpace(tag) == "" {
		return "v0.0.0"
	}
	tag = strings.TrimSpace(tag)

	status, statusErr := sh.Output("git", "status", "--porcelain")
	dirty := statusErr == nil && strings.TrimSpace(status) != ""

	if _, err := sh.Output("git", "describe", "--tags", "--exact-match"); err != nil || dirty {
		return tag + "-dirty"
	}
	return tag
}
