package main

import (
	"github.com/billm/baaaht/messenger/cmd"
)

func main() {
	cmd.Execute()
}
