//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildNxload)
	fmt.Println("Compilation finished")
	return nil
}

func BuildNxload() error {
	fmt.Println("Building nxload executable...")
	cmd := exec.Command("go", "build", "-o", "./bin/nxload", "./nxload")
	return runWithCgo(cmd)
}

// Test runs the unit tests, libhdf5 is needed to link the package
func Test() error {
	fmt.Println("Running tests...")
	cmd := exec.Command("go", "test", "./...")
	return runWithCgo(cmd)
}

func runWithCgo(cmd *exec.Cmd) error {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
