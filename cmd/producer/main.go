package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "producer",
		Usage: "Publish messages to every configured Kafka topic",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Publish newline-delimited messages read from stdin or a file",
				Flags:  append(commonFlags(), runFlags()...),
				Action: run,
			},
			{
				Name:   "produce",
				Usage:  "Publish a single message and exit",
				Flags:  append(commonFlags(), produceFlags()...),
				Action: produceOnce,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
