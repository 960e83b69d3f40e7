package main

import "github.com/notargets/gohpcg/cmd"

func main() {
	cmd.Execute()
}
