package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/youruser/mmedit/internal/api"
	"github.com/youruser/mmedit/internal/editor"
	"github.com/youruser/mmedit/internal/mindmap"
	"github.com/youruser/mmedit/internal/session"
	"github.com/youruser/mmedit/internal/textedit"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the document tree as flattened markdown",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		tree, err := api.NewClient(cfg.ServerURL).Tree(ctx)
		if err != nil {
			return fmt.Errorf("failed to load tree: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), mindmap.Flatten(tree))
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List editable files grouped by module",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		files, err := api.NewClient(cfg.ServerURL).ListFiles(ctx)
		if err != nil {
			return fmt.Errorf("failed to list files: %w", err)
		}
		printGroups(cmd.OutOrStdout(), editor.GroupFiles(files))
		return nil
	},
}

func printGroups(w io.Writer, groups []editor.Group) {
	for _, g := range groups {
		indent := ""
		if g.Module != "" {
			fmt.Fprintf(w, "%s/\n", g.Module)
			indent = "  "
		}
		for _, f := range g.Files {
			fmt.Fprintf(w, "%s%s\t%s\n", indent, f.DisplayName, f.Path)
		}
	}
}

var (
	assistAction string
	assistPrompt string
)

var assistCmd = &cobra.Command{
	Use:   "assist <path>",
	Short: "Stream an AI suggestion for a file to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		client := api.NewClient(cfg.ServerURL)
		status, err := client.AIStatus(ctx)
		if err != nil {
			return fmt.Errorf("AI status check failed: %w", err)
		}

		path := args[0]
		content, err := client.ReadFile(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to load file: %w", err)
		}

		out := &assistPrinter{w: cmd.OutOrStdout(), errW: cmd.ErrOrStderr()}
		a := session.NewAssist(client, out, session.SystemClipboard{})
		a.SetAvailable(status.Available, status.Message)

		err = a.Start(ctx, session.AssistInput{
			Action:       assistAction,
			CustomPrompt: assistPrompt,
			Context:      "File: " + path,
			Doc:          textedit.Document{Text: content},
		})
		fmt.Fprintln(cmd.OutOrStdout())
		return err
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one message to the documentation agent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		client := api.NewClient(cfg.ServerURL)
		status, err := client.AgentStatus(ctx)
		if err != nil {
			return fmt.Errorf("agent status check failed: %w", err)
		}
		if !status.Available && status.Message != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), status.Message)
		}

		out := newChatPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
		c := session.NewChat(client, out)
		c.SetAvailable(status.Available)

		err = c.Send(ctx, strings.Join(args, " "))
		fmt.Fprintln(cmd.OutOrStdout())
		return err
	},
}

func init() {
	assistCmd.Flags().StringVarP(&assistAction, "action", "a", "improve", "Assist action (improve, expand, summarize, custom, ...)")
	assistCmd.Flags().StringVarP(&assistPrompt, "prompt", "p", "", "Prompt for the custom action")
}

// assistPrinter writes each newly streamed chunk of an assist response.
type assistPrinter struct {
	w, errW io.Writer
	printed int
}

func (p *assistPrinter) AssistState(session.AssistState, bool) {}

func (p *assistPrinter) AssistText(text string) {
	if len(text) < p.printed {
		p.printed = 0
	}
	fmt.Fprint(p.w, text[p.printed:])
	p.printed = len(text)
}

func (p *assistPrinter) AssistError(msg string) {
	fmt.Fprintln(p.errW, msg)
}

func (p *assistPrinter) AssistPlaceholder(msg string) {
	fmt.Fprintln(p.errW, msg)
}

func (p *assistPrinter) AssistEstimate(tokens int) {
	log.Debug("Assist payload ~%d tokens", tokens)
}

// chatPrinter writes assistant text to w as it streams; tool use and
// errors go to errW.
type chatPrinter struct {
	w, errW io.Writer
	printed map[int]int
}

func newChatPrinter(w, errW io.Writer) *chatPrinter {
	return &chatPrinter{w: w, errW: errW, printed: make(map[int]int)}
}

func (p *chatPrinter) ChatEntry(i int, e session.Entry) {
	switch e.Kind {
	case session.EntryAssistant:
		fmt.Fprint(p.w, e.Content)
		p.printed[i] = len(e.Content)
	case session.EntryTool:
		fmt.Fprintf(p.errW, "[%s]\n", e.Content)
	case session.EntryError:
		fmt.Fprintln(p.errW, e.Content)
	}
}

func (p *chatPrinter) ChatEntryUpdate(i int, e session.Entry) {
	n := p.printed[i]
	if n > len(e.Content) {
		n = 0
	}
	fmt.Fprint(p.w, e.Content[n:])
	p.printed[i] = len(e.Content)
}

func (p *chatPrinter) ChatTyping(bool)   {}
func (p *chatPrinter) ChatBusy(bool)     {}
func (p *chatPrinter) ChatInputCleared() {}
