package main

import "github.com/Taichi-iskw/clipquiz/cmd"

func main() {
	cmd.Execute()
}
