package main

import "github.com/audiolibrelab/pcmrecorder/cmd"

func main() {
	cmd.Execute()
}
