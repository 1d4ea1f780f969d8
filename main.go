package main

import (
	"github.com/onyxcmd/onyxd/cmd"
)

func main() {
	cmd.Execute()
}
