package main

import "github.com/voiplab/sipbox/cmd"

func main() {
	cmd.Execute()
}
