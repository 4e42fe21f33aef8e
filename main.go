/*
Copyright 2023 Markus Papenbrock
*/
package main

import "github.com/mpapenbr/botrace/cmd"

func main() {
	cmd.Execute()
}
