package main

import (
	"os"

	"github.com/carlmjohnson/exitcode"
	"github.com/earthboundkid/makezip/archive"
)

func main() {
	exitcode.Exit(archive.CLI(os.Args[1:]))
}
