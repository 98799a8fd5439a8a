package main

import (
	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{Use: "robin"}

	root.AddCommand(serveCMD(), investigateCMD())
	_ = root.Execute()
}
