package main

import (
	"context"
	"fmt"
	"os"

	"github.com/snoreguard/panel/internal/admin"
)

func main() {
	if err := admin.Run(context.Background(), os.Args[1:], os.Getenv, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
