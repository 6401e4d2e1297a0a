//go:build mage
// +build mage

package main

import (
	"github.com/princjef/mageutil/bintool"
	"github.com/princjef/mageutil/shellcmd"
)

var (
	golines = bintool.Must(bintool.NewGo(
		"github.com/segmentio/golines",
		"v0.12.2",
	))
	linter = bintool.Must(bintool.New(
		"golangci-lint{{.BinExt}}",
		"1.61.0",
		"https://github.com/golangci/golangci-lint/releases/download/v{{.Version}}/golangci-lint-{{.Version}}-{{.GOOS}}-{{.GOARCH}}{{.ArchiveExt}}",
	))
)

// Format wraps long lines and formats the code.
func Format() error {
	if err := golines.Ensure(); err != nil {
		return err
	}
	return golines.Command(`-m 80 --no-reformat-tags -w .`).Run()
}

// Lint lints the code.
func Lint() error {
	if err := linter.Ensure(); err != nil {
		return err
	}
	return linter.Command(`run`).Run()
}

// Test runs the unit tests, including the ones against the embedded broker.
func Test() error {
	return shellcmd.Command(`go test -race -cover -timeout 60s ./...`).Run()
}

// Core runs the codec and aggregator tests only.
func Core() error {
	return shellcmd.Command(
		`go test -race -cover ./wire/... ./aggregate/... ./sensor/...`,
	).Run()
}

// Build builds the tempmesh command.
func Build() error {
	return shellcmd.Command(`go build -o bin/ ./cmd/tempmesh`).Run()
}

// CI runs format, lint and test.
func CI() error {
	if err := Format(); err != nil {
		return err
	}
	if err := Lint(); err != nil {
		return err
	}
	return Test()
}
