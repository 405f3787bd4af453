package main

import (
	"fmt"
	"os"

	"github.com/serverlesstf/greeter/command"
)

func main() {
	if err := command.Main(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
