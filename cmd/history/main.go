// Package main provides the command line of the history proofs. It computes
// the weight quorums of a roster, inspects the database of a node and runs an
// in-process network through the constructions.
//
//	history quorum --node 1=10 --node 2=10 --node 3=10
//	history --prometheus :9100 simulate --nodes 4 --transitions 2
//	history inspect --db node1.db
package main

import (
	"fmt"
	"io"
	"os"

	urfave "github.com/urfave/cli/v2"
)

var printer io.Writer = os.Stderr

func main() {
	err := run(os.Args)
	if err != nil {
		fmt.Fprintf(printer, "%+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	return newApp(os.Stdout).Run(args)
}

func newApp(out io.Writer) *urfave.App {
	a := &action{out: out}

	return &urfave.App{
		Name:      "history",
		Usage:     "chain-of-trust history proofs",
		Writer:    out,
		ErrWriter: out,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  "config",
				Usage: "path to the YAML configuration",
			},
			&urfave.StringFlag{
				Name:  "log-level",
				Usage: "overrides the log level of the configuration",
			},
			&urfave.StringFlag{
				Name:  "hash",
				Usage: "hash algorithm of the proofs: blake3, sha256 or sha3-256",
				Value: "blake3",
			},
			&urfave.StringFlag{
				Name:  "prometheus",
				Usage: "address of the prometheus endpoint, disabled when empty",
			},
			&urfave.StringFlag{
				Name:  "tracing",
				Usage: "jaeger service name of the spans, disabled when empty",
			},
		},
		Before: a.setup,
		After:  a.teardown,
		Commands: []*urfave.Command{
			{
				Name:  "quorum",
				Usage: "compute the weight quorums of a roster",
				Flags: []urfave.Flag{
					&urfave.StringSliceFlag{
						Name:     "node",
						Usage:    "member of the roster as <id>=<weight>",
						Required: true,
					},
				},
				Action: a.quorumAction,
			},
			{
				Name:  "inspect",
				Usage: "print the constructions stored in the database of a node",
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  "db",
						Usage: "path to the database, the configured one when empty",
					},
				},
				Action: a.inspectAction,
			},
			{
				Name:  "simulate",
				Usage: "run a network of nodes through the bootstrap and some transitions",
				Flags: []urfave.Flag{
					&urfave.IntFlag{
						Name:  "nodes",
						Usage: "number of nodes of the genesis roster",
						Value: 4,
					},
					&urfave.IntFlag{
						Name:  "weight",
						Usage: "weight of each node",
						Value: 10,
					},
					&urfave.IntFlag{
						Name:  "transitions",
						Usage: "number of roster transitions after the bootstrap",
						Value: 1,
					},
					&urfave.IntFlag{
						Name:  "rounds",
						Usage: "maximum number of rounds of a construction",
						Value: 50,
					},
					&urfave.StringFlag{
						Name:  "dir",
						Usage: "directory of the databases, a temporary one when empty",
					},
				},
				Action: a.simulateAction,
			},
		},
	}
}
