package main

import "logi-track/cmd"

func main() {
	cmd.Execute()
}
