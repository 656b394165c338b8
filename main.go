package main

import "hdql/cmd"

func main() {
	cmd.Execute()
}
