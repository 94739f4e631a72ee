package main

import "github.com/mcoot/worldrelay/internal/cli"

func main() {
	cli.Execute()
}
