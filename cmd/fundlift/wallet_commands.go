package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/fundlift/fundlift/client"
)

func serverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Value:   "http://localhost:8080",
		Usage:   "HTTP server URL",
		EnvVars: []string{"FUNDLIFT_SERVER_URL"},
	}
}

func jsonFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "json",
		Aliases: []string{"j"},
		Usage:   "Output as JSON",
	}
}

func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
}

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Wallet session commands",
		Subcommands: []*cli.Command{
			walletConnectCommand(),
			walletStatusCommand(),
			walletDisconnectCommand(),
		},
	}
}

func walletConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Unlock a keystore account and bind the wallet session",
		Flags: []cli.Flag{
			serverFlag(),
			jsonFlag(),
			&cli.StringFlag{
				Name:    "account",
				Aliases: []string{"a"},
				Usage:   "Keystore account address (defaults to the first account)",
				EnvVars: []string{"FUNDLIFT_WALLET_ACCOUNT"},
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "Keystore passphrase (prompted when not set)",
				EnvVars: []string{"FUNDLIFT_KEYSTORE_PASSPHRASE"},
			},
		},
		Action: func(c *cli.Context) error {
			passphrase := c.String("passphrase")
			if passphrase == "" {
				fmt.Fprint(os.Stderr, "Keystore passphrase: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read passphrase: %w", err)
				}
				passphrase = strings.TrimSpace(line)
			}

			cl := client.NewClient(c.String("server"), nil, cliLogger())
			session, err := cl.Connect(c.Context, c.String("account"), passphrase)
			if err != nil {
				return fmt.Errorf("failed to connect wallet: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(session)
				fmt.Println(string(data))
			} else {
				fmt.Printf("✓ Wallet connected\n")
				fmt.Printf("  Address: %s\n", session.Address)
				fmt.Printf("  Network: %s (chain id %d)\n", session.Network.Name, session.Network.ChainID)
			}
			return nil
		},
	}
}

func walletStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current wallet session",
		Flags: []cli.Flag{serverFlag(), jsonFlag()},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, cliLogger())
			session, err := cl.GetSession(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}

			if c.Bool("json") {
				data, _ := json.Marshal(session)
				fmt.Println(string(data))
				return nil
			}
			if !session.Connected {
				fmt.Println("No wallet connected")
				return nil
			}
			fmt.Printf("Connected as %s on %s\n", session.ShortAddress, session.Network.Name)
			return nil
		},
	}
}

func walletDisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Clear the wallet session",
		Flags: []cli.Flag{serverFlag()},
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server"), nil, cliLogger())
			if err := cl.Disconnect(c.Context); err != nil {
				return fmt.Errorf("failed to disconnect: %w", err)
			}
			fmt.Println("✓ Wallet disconnected")
			return nil
		},
	}
}
