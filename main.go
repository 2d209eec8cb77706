package main

import (
	"fmt"

	"github.com/zeu5/rl-env-utils/benchmarks"
)

// main entry point to the benchmarks
func main() {
	rootCommand := benchmarks.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		fmt.Println(err)
	}
}
