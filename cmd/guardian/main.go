package main

import "github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/cli"

func main() {
	cli.Execute()
}
