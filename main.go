package main

import "github.com/DanSnow/dfs-fuse/cmd"

func main() {
	cmd.Execute()
}
