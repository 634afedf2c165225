package main

import (
	"context"
	"fmt"
	"os"

	"news-engine/bootstrap"
)

func main() {
	if err := bootstrap.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "news-engine: %v\n", err)
		os.Exit(1)
	}
}
