//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

var shaderSources = []string{"shader.vert", "flat.vert", "shader.frag"}

// Compiles the GLSL sources to SPIR-V with glslc when they changed.
func (Build) Shaders() error {
	for _, src := range shaderSources {
		in := filepath.Join(shaderDir, src)
		out := in + ".spv"
		rebuild, err := target.Path(out, in)
		if err != nil {
			return err
		}
		if !rebuild {
			continue
		}
		if _, err := executeCmd("glslc", withArgs(in, "-o", out), withStream()); err != nil {
			return err
		}
	}
	return nil
}

// Builds the testbed binary into bin/.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", filepath.Join("bin", "fromscratch"), "."), withStream())
	return err
}
