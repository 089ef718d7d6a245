package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/BioHazard786/warpchat/internal/mesh"
	"github.com/chzyer/readline"
	"github.com/fatih/color"
	pretty "github.com/jedib0t/go-pretty/v6/table"
)

var (
	promptColor  = color.New(color.FgGreen, color.Bold)
	senderColor  = color.New(color.FgCyan, color.Bold)
	selfColor    = color.New(color.FgGreen, color.Bold)
	timeColor    = color.New(color.FgHiBlack)
	infoColor    = color.New(color.FgHiBlack)
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed)
)

// PlainOptions configures the line-mode chat.
type PlainOptions struct {
	Name        string
	HistoryFile string
}

// RunPlain runs a line-oriented chat on the terminal with readline
// editing and completion. It suits terminals where the full-screen UI
// does not.
func RunPlain(ctx context.Context, s Session, opts PlainOptions) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          plainPrompt(opts.Name),
		HistoryFile:     opts.HistoryFile,
		AutoComplete:    newCompleter(ctx, s),
		InterruptPrompt: "^C",
		EOFPrompt:       "/quit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer rl.Close()

	p := &linePrinter{out: rl.Stdout()}
	for _, g := range Greeting {
		p.println(plainNotice(mesh.NoticeInfo, g))
	}

	go func() {
		for ev := range s.Events() {
			if line := plainEvent(ev); line != "" {
				p.println(line)
			}
		}
		p.println(plainNotice(mesh.NoticeWarning, "Session ended."))
	}()
	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := ParseCommand(line)
		if err != nil {
			p.println(plainNotice(mesh.NoticeError, err.Error()))
			continue
		}
		reply, err := Execute(ctx, s, cmd)
		if err != nil {
			p.println(plainNotice(mesh.NoticeError, err.Error()))
			continue
		}
		if reply.Quit {
			return nil
		}
		if cmd.Kind == CmdName {
			rl.SetPrompt(plainPrompt(cmd.Arg))
		}
		if reply.Text != "" {
			p.println(plainNotice(mesh.NoticeSuccess, reply.Text))
		}
		if reply.Table != nil {
			p.println(PrettyTable(reply.Table))
		}
	}
}

func plainPrompt(name string) string {
	if name == "" {
		return promptColor.Sprint("> ")
	}
	return promptColor.Sprintf("%s> ", name)
}

// newCompleter completes commands, participant names and room ids.
func newCompleter(ctx context.Context, s Session) *readline.PrefixCompleter {
	users := readline.PcItemDynamic(func(string) []string {
		peers, err := s.Users(ctx)
		if err != nil {
			return nil
		}
		names := make([]string, len(peers))
		for i, p := range peers {
			names[i] = p.Name
		}
		return names
	})
	linked := readline.PcItemDynamic(func(string) []string {
		links, err := s.Links(ctx)
		if err != nil {
			return nil
		}
		names := make([]string, len(links))
		for i, l := range links {
			names[i] = l.RemoteName
		}
		return names
	})
	rooms := readline.PcItemDynamic(func(string) []string {
		var ids []string
		for _, r := range s.Rooms() {
			ids = append(ids, r.ID)
		}
		return ids
	})

	return readline.NewPrefixCompleter(
		readline.PcItem("/connect", users),
		readline.PcItem("/disconnect", linked),
		readline.PcItem("/name"),
		readline.PcItem("/users"),
		readline.PcItem("/links"),
		readline.PcItem("/rooms"),
		readline.PcItem("/room",
			readline.PcItem("create"),
			readline.PcItem("join", rooms),
			readline.PcItem("leave", rooms),
		),
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
	)
}

// linePrinter serializes output from the event goroutine and the prompt loop.
type linePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *linePrinter) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func plainEvent(ev mesh.Event) string {
	switch ev := ev.(type) {
	case mesh.MessageReceived:
		sender := senderColor.Sprint(ev.Sender)
		if ev.Outgoing {
			sender = selfColor.Sprint(ev.Sender)
		}
		return fmt.Sprintf("%s %s: %s", timeColor.Sprint(ev.At.Format("15:04")), sender, ev.Text)
	case mesh.SystemNotice:
		return plainNotice(ev.Level, ev.Text)
	case mesh.StatusChanged:
		return plainNotice(mesh.NoticeInfo, "Status: "+ev.Status)
	}
	return ""
}

func plainNotice(level mesh.NoticeLevel, text string) string {
	switch level {
	case mesh.NoticeSuccess:
		return successColor.Sprint("✓ " + text)
	case mesh.NoticeWarning:
		return warningColor.Sprint("! " + text)
	case mesh.NoticeError:
		return errorColor.Sprint("✗ " + text)
	}
	return infoColor.Sprint("* " + text)
}

// PrettyTable renders t as a plain-text table.
func PrettyTable(t *Table) string {
	if len(t.Rows) == 0 {
		return infoColor.Sprint(t.Empty)
	}

	tw := pretty.NewWriter()
	tw.SetStyle(pretty.StyleRounded)
	if t.Title != "" {
		tw.SetTitle(t.Title)
	}
	header := make(pretty.Row, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, r := range t.Rows {
		row := make(pretty.Row, len(r))
		for i, v := range r {
			row[i] = v
		}
		tw.AppendRow(row)
	}
	return tw.Render()
}
