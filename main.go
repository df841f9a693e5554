package main

import "github.com/jsvoboda/facebench/cmd"

func main() {
	cmd.Execute()
}
