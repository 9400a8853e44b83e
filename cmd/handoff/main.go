package main

import (
	"github.com/vietddude/handoff/internal/cli"
)

func main() {
	cli.Execute()
}
