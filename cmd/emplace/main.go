package main

import "github.com/emplace-build/emplace/cmd/emplace/internal"

func main() {
	internal.Execute()
}
