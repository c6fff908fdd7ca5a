package main

import "github.com/pboyd/detour/internal/cli"

func main() {
	cli.Execute()
}
