//go:build !unix

package toolrun

import "os/exec"

func configureProcess(*exec.Cmd) {}
