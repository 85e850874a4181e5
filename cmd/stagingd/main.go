package main

import "github.com/kit-data-manager/staging/cmd/stagingd/cmd"

func main() {
	cmd.Execute()
}
