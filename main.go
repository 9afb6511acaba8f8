package main

import "github.com/KBesada24/log-analyzer-plugins/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
