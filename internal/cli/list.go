package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand(get func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored value-sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return get().runList(cmd.Context())
		},
	}
}

func newShowCommand(get func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry> <attr>",
		Short: "Show the values of one attribute",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runShow(cmd.Context(), args[0], args[1])
		},
	}
}

func newIndexCommand(get func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "index <entry> <attr>",
		Short: "Print the equality index keys of one attribute",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runIndex(cmd.Context(), args[0], args[1])
		},
	}
}

func newLookupCommand(get func() *Cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <index-key>",
		Short: "Find the attributes holding an index key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return get().runLookup(cmd.Context(), args[0])
		},
	}
}

func (c *Cli) runList(ctx context.Context) error {
	summaries, err := c.dataService.List(ctx)
	if err != nil {
		return err
	}

	if !c.io.IsTerminal() {
		type row struct {
			Key  string `json:"key"`
			Kind string `json:"kind"`
			Len  int    `json:"len"`
		}
		rows := make([]row, 0, len(summaries))
		for _, s := range summaries {
			rows = append(rows, row{Key: s.Key.String(), Kind: s.Kind.String(), Len: s.Len})
		}
		return c.printJSON(rows)
	}

	c.io.Println("=== Stored Value-Sets ===")
	c.io.Println()
	if len(summaries) == 0 {
		c.io.Println("No value-sets found.")
		return nil
	}
	for i, s := range summaries {
		c.io.Printf("%d. %s\n", i+1, s.Key)
		c.io.Printf("   Kind:   %s\n", s.Kind)
		c.io.Printf("   Values: %d\n", s.Len)
	}
	return nil
}

func (c *Cli) runShow(ctx context.Context, entry, attr string) error {
	key, err := parseKey(entry, attr)
	if err != nil {
		return err
	}

	vs, err := c.dataService.Get(ctx, key)
	if err != nil {
		return err
	}

	if !c.io.IsTerminal() {
		return c.printJSON(vs.Project())
	}

	c.io.Printf("=== %s (%s) ===\n", key, vs.Kind())
	c.io.Println()
	lines := vs.Strings()
	if len(lines) == 0 {
		c.io.Println("No values.")
		return nil
	}
	for _, line := range lines {
		c.io.Println(line)
	}
	return nil
}

func (c *Cli) runIndex(ctx context.Context, entry, attr string) error {
	key, err := parseKey(entry, attr)
	if err != nil {
		return err
	}

	keys, err := c.dataService.IndexKeys(ctx, key)
	if err != nil {
		return err
	}
	for _, k := range keys {
		c.io.Println(k)
	}
	return nil
}

func (c *Cli) runLookup(ctx context.Context, indexKey string) error {
	keys, err := c.dataService.Lookup(ctx, indexKey)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no attribute holds index key %q", indexKey)
	}
	for _, k := range keys {
		c.io.Println(k.String())
	}
	return nil
}
