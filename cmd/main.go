package main

import "github.com/MimeLyc/bioreel/internal/cli"

func main() {
	cli.Execute()
}
