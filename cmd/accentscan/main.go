package main

import "github.com/forPelevin/accentscan/internal/cli"

func main() {
	cli.Main()
}
