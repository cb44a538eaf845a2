package main

import "emoji-stories/cmd"

func main() {
	cmd.Execute()
}
