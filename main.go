package main

import (
	"github.com/vvuk/idlebind/cmd"
)

var version = "v0.3.1"

func main() {
	cmd.Execute(version)
}
