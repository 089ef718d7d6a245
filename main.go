package main

import "github.com/BioHazard786/warpchat/cmd"

func main() {
	cmd.Execute()
}
