// Package main - scenario-runner
// Executable to run the end-to-end loop scenario harness.
package main

import (
	"fmt"
	"os"

	"github.com/hourglass-games/timelift/server/test"
)

func main() {
	fmt.Println("TIMELIFT - SCENARIO SUITE")
	fmt.Println("================================================")

	scenario, err := test.NewLoopScenarioTest()
	if err != nil {
		fmt.Printf("Failed to build scenario: %v\n", err)
		os.Exit(1)
	}
	scenario.RunTest()

	results := scenario.GetResults()
	passed := 0
	failed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	fmt.Println("\n============================================================")
	fmt.Println("SCENARIO SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("   Passed: %d\n", passed)
	fmt.Printf("   Failed: %d\n", failed)

	if failed > 0 {
		os.Exit(1)
	}
}
