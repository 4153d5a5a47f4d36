package main

import (
	"os"

	"github.com/hatdsl/hat/internal/ctl"
)

func main() {
	os.Exit(ctl.Run("hatctl", os.Args[1:]))
}
