// Package main is the entry point for masterdata.
package main

func main() {
	Execute()
}
