package main

import "techtribe-client/cmd"

func main() {
	cmd.Run()
}
