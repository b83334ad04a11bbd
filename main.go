package main

import "dubbing-service/cmd"

func main() {
	cmd.Execute()
}
