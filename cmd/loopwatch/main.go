package main

import "github.com/ppiankov/loopwatch/internal/cli"

func main() {
	cli.Execute()
}
