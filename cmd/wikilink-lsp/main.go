// Package main provides the entry point for the wikilink language
// server.
//
// The server speaks LSP over stdio by default:
//
//	wikilink-lsp
//
// or over a single TCP connection for editors that prefer sockets:
//
//	wikilink-lsp --tcp 127.0.0.1:9257
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WaylonWalker/lspkit-go/pkg/server"
	"github.com/WaylonWalker/lspkit-go/pkg/wiki"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	verboseFlag bool
	tcpFlag     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "wikilink-lsp",
		Short:        "Language server for markdown wikilink workspaces",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
	rootCmd.Flags().StringVar(&tcpFlag, "tcp", "", "serve one TCP connection on this address instead of stdio")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wikilink-lsp %s (%s)\n", version, commit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	flags := log.LstdFlags
	if verboseFlag {
		flags |= log.Lshortfile
	}
	logger := log.New(os.Stderr, "[wikilink-lsp] ", flags)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutting down...")
		cancel()
	}()

	stdin, stdout, closeConn, err := transport(logger)
	if err != nil {
		return err
	}
	defer closeConn()

	client := server.NewClient(logger, 8)
	defer client.Close()

	handlers := wiki.NewHandlers(logger, client)
	router := server.NewRouter(logger)
	if err := handlers.Register(router); err != nil {
		return fmt.Errorf("registering handlers: %w", err)
	}

	srv := server.NewServer(stdin, stdout, server.WithLogger(logger)).
		Interleave(client.Messages())

	if err := srv.Serve(ctx, router); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// transport picks stdio or a single accepted TCP connection.
func transport(logger *log.Logger) (stdin io.Reader, stdout io.Writer, cleanup func(), err error) {
	if tcpFlag == "" {
		return os.Stdin, os.Stdout, func() {}, nil
	}

	ln, err := net.Listen("tcp", tcpFlag)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listening on %s: %w", tcpFlag, err)
	}
	logger.Printf("waiting for connection on %s", tcpFlag)

	conn, err := ln.Accept()
	ln.Close() //nolint:errcheck
	if err != nil {
		return nil, nil, nil, fmt.Errorf("accepting connection: %w", err)
	}
	logger.Printf("client connected from %s", conn.RemoteAddr())

	return conn, conn, func() { conn.Close() }, nil //nolint:errcheck
}
