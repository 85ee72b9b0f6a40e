package main

import "github.com/glueful/glueful/cmd/glueful/cmd"

func main() {
	cmd.Execute()
}
