// main.go - Entry point for the airphoto-tiler command
package main

import "github.com/valpere/airphoto_tiler/cmd"

func main() {
	cmd.Execute()
}
