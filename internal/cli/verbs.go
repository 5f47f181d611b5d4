package cli

import (
	"context"
	"fmt"
	"io"
)

type runFunc func(ctx context.Context, ops Operations, args []string, out io.Writer) error

// verb is one row of the dispatch table. args counts the tokens after the verb.
type verb struct {
	name string
	args int
	run  runFunc
}

var verbs = []verb{
	{"start", 0, func(ctx context.Context, ops Operations, _ []string, _ io.Writer) error {
		return ops.Start(ctx)
	}},
	{"stop", 0, func(ctx context.Context, ops Operations, _ []string, _ io.Writer) error {
		return ops.Stop(ctx)
	}},
	{"list", 0, func(ctx context.Context, ops Operations, _ []string, out io.Writer) error {
		zones, err := ops.ListZones(ctx)
		if err != nil {
			return err
		}
		return printLines(out, zones)
	}},
	{"purge", 0, func(ctx context.Context, ops Operations, _ []string, out io.Writer) error {
		removed, err := ops.Purge(ctx)
		for _, z := range removed {
			fmt.Fprintf(out, "deleted %s\n", z)
		}
		return err
	}},
	{"add", 1, func(ctx context.Context, ops Operations, args []string, _ io.Writer) error {
		return ops.AddZone(ctx, args[0])
	}},
	{"del", 1, func(ctx context.Context, ops Operations, args []string, _ io.Writer) error {
		return ops.DeleteZone(ctx, args[0])
	}},
	{"show", 1, func(ctx context.Context, ops Operations, args []string, out io.Writer) error {
		recs, err := ops.ShowZone(ctx, args[0])
		if err != nil {
			return err
		}
		return printLines(out, recs)
	}},
}

// recordVerbs are the sub-verbs of "record ZONE <sub> ...". tokens is the
// full token count including "record" itself.
var recordVerbs = map[string]struct {
	tokens int
	run    func(ctx context.Context, ops Operations, zone, host string, rest []string) error
}{
	"a": {5, func(ctx context.Context, ops Operations, zone, host string, rest []string) error {
		return ops.SetRecordA(ctx, zone, host, rest[0])
	}},
	"del": {4, func(ctx context.Context, ops Operations, zone, host string, _ []string) error {
		return ops.DeleteRecord(ctx, zone, host)
	}},
}

// Command is a validated invocation ready to run.
type Command struct {
	Verb string
	Args []string
	run  runFunc
}

// Parse selects the verb for tokens and checks its arity. It never calls
// into Operations.
func Parse(tokens []string) (Command, error) {
	if len(tokens) == 0 {
		return Command{}, usagef(ExitUsage, "no command given")
	}
	name, args := tokens[0], tokens[1:]

	if name == "record" {
		return parseRecord(tokens)
	}
	for _, v := range verbs {
		if v.name != name {
			continue
		}
		if len(args) != v.args {
			return Command{}, usagef(ExitUsage, "%s takes %d argument(s), got %d", name, v.args, len(args))
		}
		return Command{Verb: name, Args: args, run: v.run}, nil
	}
	return Command{}, usagef(ExitDispatch, "unknown command %q", name)
}

func parseRecord(tokens []string) (Command, error) {
	if len(tokens) < 4 {
		return Command{}, usagef(ExitDispatch, "record needs ZONE, a sub-command and HOST")
	}
	zone, sub, host := tokens[1], tokens[2], tokens[3]
	rv, ok := recordVerbs[sub]
	if !ok {
		return Command{}, usagef(ExitDispatch, "unknown record command %q", sub)
	}
	if len(tokens) != rv.tokens {
		return Command{}, usagef(ExitDispatch, "record %s takes %d argument(s), got %d", sub, rv.tokens-1, len(tokens)-1)
	}
	rest := tokens[4:]
	return Command{
		Verb: "record " + sub,
		Args: tokens[1:],
		run: func(ctx context.Context, ops Operations, _ []string, _ io.Writer) error {
			return rv.run(ctx, ops, zone, host, rest)
		},
	}, nil
}

// Run executes the command against ops, writing listings to out.
func (c Command) Run(ctx context.Context, ops Operations, out io.Writer) error {
	if c.run == nil {
		return usagef(ExitDispatch, "empty command")
	}
	return c.run(ctx, ops, c.Args, out)
}

func printLines(out io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(out, l); err != nil {
			return err
		}
	}
	return nil
}
