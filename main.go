package main

import "github.com/ObiAU/newssearch/cmd"

var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
