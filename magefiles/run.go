//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed. Uses config.toml when present.
func (Run) Engine() error {
	mg.Deps(Build.Shaders)
	fmt.Println("Run engine...")
	args := []string{"run", "."}
	if _, err := os.Stat("config.toml"); err == nil {
		args = append(args, "--config", "config.toml")
	}
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests.
func (Run) Tests() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
