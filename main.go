package main

import (
	"github.com/promptdeck/promptdeck/internal/cmd"
)

func main() {
	cmd.Execute()
}
