// Command sstash-cli is an interactive client for the sstash wire
// protocol: connect once, then issue commands line by line, structured
// as a cobra command tree the same way the teacher's cmd/kv package
// groups one subcommand per verb.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sstash/sstash/internal/sstashclient"
)

var (
	client    *sstashclient.Client
	stashFlag string
)

var rootCmd = &cobra.Command{
	Use:   "sstash-cli <ip> <port>",
	Short: "interactive sstash client",
	Args:  cobra.ExactArgs(2),
	RunE:  runREPL,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runREPL(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[1], err)
		os.Exit(1)
	}
	addr := net.JoinHostPort(args[0], strconv.Itoa(port))

	c, err := sstashclient.Dial(addr, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connecting to %s: %v\n", addr, err)
		os.Exit(2)
	}
	client = c
	defer client.Close()

	fmt.Printf("connected to %s\n", addr)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("sstash> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := dispatchLine(line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	return nil
}

// dispatchLine builds a fresh command tree per line and executes it,
// since cobra commands are not meant to be re-run with new args after
// a prior Execute.
func dispatchLine(line string) error {
	tree := newCommandTree()
	tree.SetArgs(strings.Fields(line))
	tree.SilenceUsage = true
	tree.SilenceErrors = true
	return tree.Execute()
}

func newCommandTree() *cobra.Command {
	tree := &cobra.Command{Use: "sstash-cli"}
	tree.PersistentFlags().StringVar(&stashFlag, "stash", "", "stash name (defaults to the server's default stash)")

	tree.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "fetch a key's value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, found, err := client.Get(stashFlag, args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("(not found)")
				return nil
			}
			fmt.Println(string(value))
			return nil
		},
	})

	tree.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "store a key with no expiration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Set(stashFlag, args[0], []byte(args[1])); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	})

	tree.AddCommand(&cobra.Command{
		Use:   "settl <key> <value> <ttl_ms>",
		Short: "store a key expiring after ttl_ms milliseconds",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ttl_ms %q: %w", args[2], err)
			}
			if err := client.SetTTL(stashFlag, args[0], []byte(args[1]), ttl); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	})

	tree.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Delete(stashFlag, args[0]); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	})

	tree.AddCommand(&cobra.Command{
		Use:   "updatettl <key> <ttl_ms>",
		Short: "change an existing key's expiration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ttl_ms %q: %w", args[1], err)
			}
			if err := client.UpdateTTL(stashFlag, args[0], ttl); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	})

	tree.AddCommand(&cobra.Command{
		Use:   "create <name> <max_key_count> <off_heap>",
		Short: "create a new named stash",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxKeyCount, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid max_key_count %q: %w", args[1], err)
			}
			offHeap, err := strconv.ParseBool(args[2])
			if err != nil {
				return fmt.Errorf("invalid off_heap %q: %w", args[2], err)
			}
			if err := client.Create(args[0], maxKeyCount, offHeap); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	})

	tree.AddCommand(&cobra.Command{
		Use:   "drop <name>",
		Short: "drop a named stash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Drop(args[0]); err != nil {
				return err
			}
			fmt.Println("OK")
			return nil
		},
	})

	tree.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "show the addressed stash's metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := client.Info(stashFlag)
			if err != nil {
				return err
			}
			fmt.Print(info)
			return nil
		},
	})

	return tree
}
