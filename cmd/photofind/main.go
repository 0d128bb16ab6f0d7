package main

import "github.com/deepak/photofind/internal/cli"

func main() {
	cli.Execute()
}
