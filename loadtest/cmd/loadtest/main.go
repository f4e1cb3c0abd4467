// Package main is the entry point for the roommate API load test binary.
// It provides subcommands for different load testing scenarios:
//
//   - query:    mixed score / feed / groups reads
//   - interest: a burst of "show interest" writes
//
// Usage:
//
//	loadtest <command> [options]
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "query":
		runQuery(os.Args[2:])
	case "interest":
		runInterest(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: loadtest <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  query       Read load: compatibility, feed and group queries")
	fmt.Println("  interest    Write load: users showing interest in each other")
	fmt.Println()
	fmt.Println("Run 'loadtest <command> -h' for command-specific options.")
}
