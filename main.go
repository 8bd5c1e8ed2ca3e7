package main

import "github.com/guimove/autoscaler/cmd"

func main() {
	cmd.Execute()
}
