package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"
	"github.com/vango-dev/topicsync/internal/config"
	"github.com/vango-dev/topicsync/internal/errors"
	"github.com/vango-dev/topicsync/pkg/client"
	"github.com/vango-dev/topicsync/pkg/topicsync"
)

const replHelp = `Commands (values are JSON):
  sub <name:kind>                 subscribe to a topic
  unsub <name>                    unsubscribe
  topics                          list topics
  get <name>                      print a value
  watch <name>                    print every change to a topic
  set <name> <value>              replace a value
  insert <name> <pos> <value>     insert text into a string or an item into a list
  delete <name> <pos> <text>      delete text from a string
  pop <name> <pos|key>            remove a list item or a dict key
  add <name> <delta>              add to an int or float
  add <name> <key> <value>        add a dict key
  change <name> <key> <value>     change a dict value
  append <name> <value>           append to a set or a list
  remove <name> <value>           remove from a set or a list
  emit <name> [value]             emit an event
  previews                        show unconfirmed changes
  help                            show this help
  exit                            leave`

var replCompleter = readline.NewPrefixCompleter(
	readline.PcItem("sub"),
	readline.PcItem("unsub"),
	readline.PcItem("topics"),
	readline.PcItem("get"),
	readline.PcItem("watch"),
	readline.PcItem("set"),
	readline.PcItem("insert"),
	readline.PcItem("delete"),
	readline.PcItem("pop"),
	readline.PcItem("add"),
	readline.PcItem("change"),
	readline.PcItem("append"),
	readline.PcItem("remove"),
	readline.PcItem("emit"),
	readline.PcItem("previews"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func replCmd(g *globalFlags) *cobra.Command {
	var history string

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Edit topics interactively",
		Long: `Start an interactive shell connected to a topicsync server.

Every command that changes a topic is sent as one action. Values are
JSON, so strings need quotes. Type help for the list of commands.

Examples:
  topicsync repl
  topicsync repl --url=ws://example.com/ws`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			return runREPL(cmd.Context(), cfg, history, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&history, "history", defaultHistoryFile(), "History file")

	return cmd
}

func defaultHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".topicsync_history")
}

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func runREPL(ctx context.Context, cfg *config.Config, history string, out, errOut io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger, err := newLogger(cfg, errOut)
	if err != nil {
		return err
	}
	s, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()
	if err := s.subscribe(ctx, cfg.Subscriptions); err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:              "topicsync> ",
		HistoryFile:         history,
		AutoComplete:        replCompleter,
		InterruptPrompt:     "^C",
		EOFPrompt:           "exit",
		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return errors.Newf(errors.CategoryCLI, "starting readline: %v", err)
	}
	defer rl.Close()
	rl.CaptureExitSignal()

	success(out, "Connected to %s as client %s", cfg.URL, s.c.ClientID())
	info(out, "Type help for commands")

	sh := &shell{c: s.c, out: out}
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if err != nil {
			return nil
		}

		if err := sh.exec(ctx, line); err != nil {
			if err == io.EOF {
				return nil
			}
			if stderrors.Is(err, client.ErrClosed) {
				return errors.Classify(s.c.Err())
			}
			fmt.Fprintf(out, "\033[31m✗\033[0m %s\n", errors.Classify(err).FormatCompact())
		}
	}
}

// shell executes REPL commands against a client.
type shell struct {
	c   *client.Client
	out io.Writer
}

// exec runs one command line. It returns io.EOF for exit.
func (sh *shell) exec(ctx context.Context, line string) error {
	cmd, rest := nextWord(strings.TrimSpace(line))
	switch cmd {
	case "":
		return nil
	case "help":
		fmt.Fprintln(sh.out, replHelp)
		return nil
	case "exit", "quit":
		return io.EOF
	case "topics":
		return sh.topics(ctx)
	case "previews":
		return sh.previews(ctx)
	case "sub":
		sub, err := config.ParseSubscription(rest)
		if err != nil {
			return err
		}
		_, err = sh.c.Subscribe(ctx, sub.Name, sub.Kind)
		return err
	case "unsub":
		return sh.c.Unsubscribe(ctx, rest)
	}

	name, rest := nextWord(rest)
	if name == "" {
		return usageErr(cmd)
	}

	switch cmd {
	case "get":
		return sh.inspect(ctx, name, func(t topicsync.Topic) {
			fmt.Fprintln(sh.out, formatJSON(t.GetAny()))
		})
	case "watch":
		return sh.inspect(ctx, name, func(t topicsync.Topic) {
			watchTopic(t, sh.out)
		})
	case "set":
		v, err := parseValue(rest)
		if err != nil {
			return err
		}
		return sh.mutate(ctx, name, func(t topicsync.Topic) error { return t.SetAny(v) })
	case "insert":
		return sh.insert(ctx, name, rest)
	case "delete":
		pos, text, err := parsePosValue(rest)
		if err != nil {
			return err
		}
		s, ok := text.(string)
		if !ok {
			return errors.New("E051").WithDetail("delete takes the text to remove as a JSON string")
		}
		return sh.mutate(ctx, name, func(t topicsync.Topic) error {
			st, ok := t.(*topicsync.StringTopic)
			if !ok {
				return wrongKind(t, cmd)
			}
			return st.Delete(pos, s)
		})
	case "pop":
		return sh.pop(ctx, name, rest)
	case "add":
		return sh.add(ctx, name, rest)
	case "change":
		key, rest := nextWord(rest)
		v, err := parseValue(rest)
		if err != nil {
			return err
		}
		return sh.mutate(ctx, name, func(t topicsync.Topic) error {
			d, ok := t.(*topicsync.DictTopic)
			if !ok {
				return wrongKind(t, cmd)
			}
			return d.ChangeValue(key, v)
		})
	case "append", "remove":
		v, err := parseValue(rest)
		if err != nil {
			return err
		}
		return sh.mutate(ctx, name, func(t topicsync.Topic) error {
			switch t := t.(type) {
			case *topicsync.SetTopic:
				if cmd == "append" {
					return t.Append(v)
				}
				return t.Remove(v)
			case *topicsync.ListTopic:
				if cmd == "append" {
					return t.Append(v)
				}
				return t.Remove(v)
			}
			return wrongKind(t, cmd)
		})
	case "emit":
		var args any
		if rest != "" {
			v, err := parseValue(rest)
			if err != nil {
				return err
			}
			args = v
		}
		return sh.mutate(ctx, name, func(t topicsync.Topic) error {
			ev, ok := t.(*topicsync.EventTopic)
			if !ok {
				return wrongKind(t, cmd)
			}
			return ev.Emit(args)
		})
	}

	return errors.New("E050").
		WithDetail("Unknown command " + cmd).
		WithSuggestion("Type help for the list of commands")
}

func (sh *shell) topics(ctx context.Context) error {
	return sh.c.Do(ctx, func(m *topicsync.StateManager) error {
		for _, name := range m.Topics() {
			t, _ := m.Topic(name)
			ti := describeTopic(t)
			switch {
			case !ti.Initialized:
				fmt.Fprintf(sh.out, "%s (%s) waiting\n", ti.Name, ti.Kind)
			case ti.Kind == topicsync.KindEvent:
				fmt.Fprintf(sh.out, "%s (%s)\n", ti.Name, ti.Kind)
			default:
				fmt.Fprintf(sh.out, "%s (%s) = %s\n", ti.Name, ti.Kind, formatJSON(ti.Value))
			}
		}
		return nil
	})
}

func (sh *shell) previews(ctx context.Context) error {
	return sh.c.Do(ctx, func(m *topicsync.StateManager) error {
		for _, p := range m.Previews() {
			fmt.Fprintf(sh.out, "%s %s\n", p.ActionID, formatJSON(p.Change.Serialize()))
		}
		return nil
	})
}

func (sh *shell) insert(ctx context.Context, name, rest string) error {
	pos, v, err := parsePosValue(rest)
	if err != nil {
		return err
	}
	return sh.mutate(ctx, name, func(t topicsync.Topic) error {
		switch t := t.(type) {
		case *topicsync.StringTopic:
			s, ok := v.(string)
			if !ok {
				return errors.New("E051").WithDetail("insert into a string topic takes a JSON string")
			}
			return t.Insert(pos, s)
		case *topicsync.ListTopic:
			return t.Insert(v, pos)
		}
		return wrongKind(t, "insert")
	})
}

func (sh *shell) pop(ctx context.Context, name, arg string) error {
	return sh.mutate(ctx, name, func(t topicsync.Topic) error {
		switch t := t.(type) {
		case *topicsync.ListTopic:
			pos, err := strconv.Atoi(arg)
			if err != nil {
				return usageErr("pop")
			}
			_, err = t.Pop(pos)
			return err
		case *topicsync.DictTopic:
			return t.Pop(arg)
		}
		return wrongKind(t, "pop")
	})
}

func (sh *shell) add(ctx context.Context, name, rest string) error {
	first, tail := nextWord(rest)
	return sh.mutate(ctx, name, func(t topicsync.Topic) error {
		switch t := t.(type) {
		case *topicsync.IntTopic:
			delta, err := strconv.ParseInt(first, 10, 64)
			if err != nil {
				return errors.New("E051").WithDetail("add to an int topic takes an integer")
			}
			return t.Add(delta)
		case *topicsync.FloatTopic:
			delta, err := strconv.ParseFloat(first, 64)
			if err != nil {
				return errors.New("E051").WithDetail("add to a float topic takes a number")
			}
			return t.Add(delta)
		case *topicsync.DictTopic:
			v, err := parseValue(tail)
			if err != nil {
				return err
			}
			return t.Add(first, v)
		}
		return wrongKind(t, "add")
	})
}

// inspect runs fn on the event loop with the topic called name.
func (sh *shell) inspect(ctx context.Context, name string, fn func(t topicsync.Topic)) error {
	return sh.c.Do(ctx, func(m *topicsync.StateManager) error {
		t, ok := m.Topic(name)
		if !ok {
			return fmt.Errorf("%w: %q", topicsync.ErrUnknownTopic, name)
		}
		fn(t)
		return nil
	})
}

// mutate records fn against the topic called name as one action.
func (sh *shell) mutate(ctx context.Context, name string, fn func(t topicsync.Topic) error) error {
	return sh.c.Do(ctx, func(m *topicsync.StateManager) error {
		t, ok := m.Topic(name)
		if !ok {
			return fmt.Errorf("%w: %q", topicsync.ErrUnknownTopic, name)
		}
		return m.Record(func() error { return fn(t) })
	})
}

// nextWord splits s at the first run of white space.
func nextWord(s string) (word, rest string) {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func parseValue(s string) (any, error) {
	if s == "" {
		return nil, errors.New("E051").WithDetail("missing value")
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.New("E051").Wrap(err)
	}
	if dec.More() {
		return nil, errors.New("E051").WithDetail("trailing data after " + s)
	}
	return v, nil
}

func parsePosValue(s string) (int, any, error) {
	posArg, rest := nextWord(s)
	pos, err := strconv.Atoi(posArg)
	if err != nil {
		return 0, nil, errors.New("E050").WithDetail("position must be an integer, got " + strconv.Quote(posArg))
	}
	v, err := parseValue(rest)
	return pos, v, err
}

func usageErr(cmd string) error {
	return errors.New("E050").
		WithDetail("Bad arguments to " + cmd).
		WithSuggestion("Type help for the list of commands")
}

func wrongKind(t topicsync.Topic, cmd string) error {
	return fmt.Errorf("%w: %s does not apply to %s, a %s topic", topicsync.ErrWrongTopicType, cmd, t.Name(), t.Kind())
}
