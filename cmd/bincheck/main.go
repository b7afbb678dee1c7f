// Command bincheck looks up BIN metadata from the command line
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"binvote/internal/adapters/binlist"
	"binvote/internal/platform/backoff"
	"binvote/internal/platform/config"
	"binvote/internal/platform/config/raw"
	"binvote/internal/platform/logger"
	"binvote/internal/platform/net/http/bind"
	"binvote/internal/services/bins/domain"
)

func main() {
	var (
		fText    = flag.Bool("text", false, "print the chat-formatted lines instead of JSON")
		fTimeout = flag.Duration("timeout", 20*time.Second, "overall lookup deadline")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-text] [-timeout d] <bin> [bin...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = raw.LoadDotEnv(".env")
	logger.Init(logger.FromEnv())
	cfg := config.New().Prefix("BINVOTE_")
	client := binlist.New(binlist.OptionsFromConfig(cfg, backoff.Default))

	ctx, cancel := context.WithTimeout(context.Background(), *fTimeout)
	defer cancel()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	failed := false
	for _, bin := range flag.Args() {
		if err := bind.Struct(&domain.Query{BIN: bin}); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", bin, err)
			failed = true
			continue
		}
		m, err := client.Lookup(ctx, bin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", bin, err)
			failed = true
			continue
		}
		if *fText {
			fmt.Println(m.Text())
			continue
		}
		if err := enc.Encode(m); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
	}
	if failed {
		os.Exit(1)
	}
}
