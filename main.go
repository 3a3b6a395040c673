package main

import "github.com/conneroisu/eigen/cmd"

func main() {
	cmd.Execute()
}
