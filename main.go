package main

import "github.com/icco/chordglide/cmd"

func main() {
	cmd.Execute()
}
