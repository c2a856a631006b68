package main

import "github.com/Dheerajkumar69/posture-detection/cmd"

func main() {
	cmd.Execute()
}
