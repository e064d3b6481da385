package main

import "merchant-governance/internal/cli"

func main() {
	cli.Execute()
}
