package main

import "github.com/relsync/relsync/cli"

func main() {
	cli.Execute()
}
