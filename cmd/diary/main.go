package main

import (
	"fmt"
	"os"

	"github.com/aretw0/diary"
)

func main() {
	Execute()
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", msg, diary.UserMessage(err))
	os.Exit(1)
}
