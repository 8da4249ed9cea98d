package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"

	"github.com/nslaift/nslaift/sdk/go/client"
)

func main() {
	addr := flag.String("addr", "tcp://127.0.0.1:5555", "server address: tcp://, ws:// or quic://")
	stopOnError := flag.Bool("stop-on-error", false, "exit on the first non-zero reply")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [command-file]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	in := io.Reader(os.Stdin)
	if flag.NArg() > 0 {
		path, err := homedir.Expand(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	ctx := context.Background()
	c, err := client.Dial(ctx, *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error connecting:", err)
		os.Exit(1)
	}
	defer c.Close()

	failed, err := replay(ctx, c, in, os.Stdout, *stopOnError)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if failed > 0 {
		os.Exit(2)
	}
}

// replay sends every non-comment line of in and prints "<code> <line>" per reply
func replay(ctx context.Context, c *client.Client, in io.Reader, out io.Writer, stopOnError bool) (int, error) {
	failed := 0
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		code, err := c.Send(ctx, line)
		if err != nil {
			return failed, err
		}
		fmt.Fprintf(out, "%c %s\n", code, line)
		if code != '0' {
			failed++
			if stopOnError {
				return failed, nil
			}
		}
	}
	return failed, scanner.Err()
}
