package main

import (
	"context"
	"fmt"
	"os"

	"github.com/coursegraph/catalog-backend/internal/app"
)

const usage = "usage: searchindex <update|remove_unused_indexes>"

func main() {
	if len(os.Args) != 2 {
		fmt.Println(usage)
		os.Exit(2)
	}
	command := os.Args[1]
	if command != "update" && command != "remove_unused_indexes" {
		fmt.Println(usage)
		os.Exit(2)
	}

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(2)
	}
	defer application.Close()

	ctx := context.Background()
	lifecycle := application.Services.SearchLifecycle

	switch command {
	case "update":
		err = lifecycle.UpdateAll(ctx)
	case "remove_unused_indexes":
		err = lifecycle.RemoveUnused(ctx)
	}
	if err != nil {
		application.Log.Error("searchindex failed", "command", command, "error", err)
		os.Exit(1)
	}
	application.Log.Info("searchindex finished", "command", command)
}
