// Package main provides the crawler CLI.
//
// Usage:
//
//	crawler                       crawl every category into ./output
//	crawler --categories Poetry   crawl a subset
//	crawler categories            list the categories on the site root
//	crawler books Poetry          print stored books (sqlite format)
//
// See --help for all available options.
package main

func main() {
	Execute()
}
