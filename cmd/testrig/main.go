package main

import (
	"fmt"
	"os"

	"github.com/testrig/testrig/internal/runner"
	"github.com/testrig/testrig/internal/selfcheck"
	"github.com/testrig/testrig/pkg/cli"
)

func main() {
	reg := runner.NewRegistry()
	if err := selfcheck.RegisterAll(reg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(cli.Entry(reg, os.Args[1:], os.Stdout, os.Stderr))
}
