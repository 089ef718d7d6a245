package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BioHazard786/warpchat/internal/mesh"
	"github.com/BioHazard786/warpchat/internal/protocol"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingArgs    = errors.New("missing argument")
)

// Session is what the chat front ends drive.
type Session interface {
	Events() <-chan mesh.Event
	Self(ctx context.Context) (mesh.Peer, error)
	SetName(ctx context.Context, name string) error
	Connect(ctx context.Context, target string) error
	Disconnect(ctx context.Context, target string) error
	Broadcast(ctx context.Context, text string) error
	Users(ctx context.Context) ([]mesh.Peer, error)
	Links(ctx context.Context) ([]mesh.LinkInfo, error)
	Rooms() []protocol.RoomInfo
	RefreshRooms() error
	CreateRoom(name string) error
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
}

type CommandKind int

const (
	CmdSay CommandKind = iota
	CmdConnect
	CmdDisconnect
	CmdName
	CmdUsers
	CmdLinks
	CmdRooms
	CmdRoomCreate
	CmdRoomJoin
	CmdRoomLeave
	CmdHelp
	CmdQuit
)

// Command is one parsed input line.
type Command struct {
	Kind CommandKind
	Arg  string
}

// commandSpec describes a slash command for parsing and help.
type commandSpec struct {
	name    string
	aliases []string
	kind    CommandKind
	usage   string
	help    string
	needArg bool
}

var commands = []commandSpec{
	{name: "/connect", aliases: []string{"/c"}, kind: CmdConnect, usage: "/connect <name|id>", help: "Open a direct link to a participant", needArg: true},
	{name: "/disconnect", aliases: []string{"/dc"}, kind: CmdDisconnect, usage: "/disconnect <name|id>", help: "Close the link to a participant", needArg: true},
	{name: "/name", aliases: []string{"/nick"}, kind: CmdName, usage: "/name <new name>", help: "Change your display name", needArg: true},
	{name: "/users", aliases: []string{"/who"}, kind: CmdUsers, usage: "/users", help: "List participants online"},
	{name: "/links", kind: CmdLinks, usage: "/links", help: "List your direct links"},
	{name: "/rooms", kind: CmdRooms, usage: "/rooms", help: "List rooms"},
	{name: "/room", kind: CmdRoomCreate, usage: "/room create|join|leave <arg>", help: "Manage rooms", needArg: true},
	{name: "/help", aliases: []string{"/?"}, kind: CmdHelp, usage: "/help", help: "Show this help"},
	{name: "/quit", aliases: []string{"/exit", "/q"}, kind: CmdQuit, usage: "/quit", help: "Leave the chat"},
}

// CommandNames lists the primary command names, for completion.
func CommandNames() []string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.name
	}
	return names
}

// ParseCommand turns an input line into a Command. Anything that does not
// start with a slash is a message for every linked peer.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: CmdSay, Arg: line}, nil
	}

	word, arg, _ := strings.Cut(line, " ")
	word = strings.ToLower(word)
	arg = strings.TrimSpace(arg)

	for _, c := range commands {
		if word != c.name && !contains(c.aliases, word) {
			continue
		}
		if c.needArg && arg == "" {
			return Command{}, fmt.Errorf("%w: usage %s", ErrMissingArgs, c.usage)
		}
		if c.name == "/room" {
			return parseRoom(arg, c.usage)
		}
		return Command{Kind: c.kind, Arg: arg}, nil
	}
	return Command{}, fmt.Errorf("%w %s, try /help", ErrUnknownCommand, word)
}

func parseRoom(arg, usage string) (Command, error) {
	sub, rest, _ := strings.Cut(arg, " ")
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(sub) {
	case "create":
		return Command{Kind: CmdRoomCreate, Arg: rest}, nil
	case "join", "leave":
		if rest == "" {
			return Command{}, fmt.Errorf("%w: usage %s", ErrMissingArgs, usage)
		}
		kind := CmdRoomJoin
		if strings.ToLower(sub) == "leave" {
			kind = CmdRoomLeave
		}
		return Command{Kind: kind, Arg: rest}, nil
	}
	return Command{}, fmt.Errorf("%w room %s, try /help", ErrUnknownCommand, sub)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Table is tabular command output, rendered differently by each front end.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Empty   string
}

// Reply is the outcome of a command.
type Reply struct {
	Text  string
	Table *Table
	Quit  bool
}

// Execute runs cmd against s. Errors the session already reported through
// its event stream are swallowed.
func Execute(ctx context.Context, s Session, cmd Command) (Reply, error) {
	switch cmd.Kind {
	case CmdSay:
		err := s.Broadcast(ctx, cmd.Arg)
		if errors.Is(err, mesh.ErrNoActiveLinks) || errors.Is(err, mesh.ErrEmptyMessage) {
			return Reply{}, nil
		}
		return Reply{}, err

	case CmdConnect:
		err := s.Connect(ctx, cmd.Arg)
		if errors.Is(err, mesh.ErrLinkExists) {
			return Reply{}, nil
		}
		return Reply{}, err

	case CmdDisconnect:
		return Reply{}, s.Disconnect(ctx, cmd.Arg)

	case CmdName:
		if err := s.SetName(ctx, cmd.Arg); err != nil {
			return Reply{}, err
		}
		return Reply{Text: "Name set to: " + cmd.Arg}, nil

	case CmdUsers:
		return usersReply(ctx, s)

	case CmdLinks:
		return linksReply(ctx, s)

	case CmdRooms:
		// The snapshot is pushed on every change; the refresh only covers
		// one that was lost on the way.
		if err := s.RefreshRooms(); err != nil {
			return Reply{}, err
		}
		return Reply{Table: roomsTable(s.Rooms())}, nil

	case CmdRoomCreate:
		return Reply{}, s.CreateRoom(cmd.Arg)

	case CmdRoomJoin:
		return Reply{}, s.JoinRoom(cmd.Arg)

	case CmdRoomLeave:
		return Reply{}, s.LeaveRoom(cmd.Arg)

	case CmdHelp:
		return Reply{Table: helpTable()}, nil

	case CmdQuit:
		return Reply{Quit: true}, nil
	}
	return Reply{}, ErrUnknownCommand
}

func usersReply(ctx context.Context, s Session) (Reply, error) {
	users, err := s.Users(ctx)
	if err != nil {
		return Reply{}, err
	}
	links, err := s.Links(ctx)
	if err != nil {
		return Reply{}, err
	}
	state := make(map[string]string, len(links))
	for _, l := range links {
		state[l.RemoteID] = l.State.String()
	}

	t := &Table{Title: IconPeer + " Participants", Headers: []string{"Name", "ID", "Link"}, Empty: "Nobody else is online"}
	for _, u := range users {
		link := state[u.ID]
		if link == "" {
			link = "-"
		}
		t.Rows = append(t.Rows, []string{u.Name, shortID(u.ID), link})
	}
	return Reply{Table: t}, nil
}

func linksReply(ctx context.Context, s Session) (Reply, error) {
	links, err := s.Links(ctx)
	if err != nil {
		return Reply{}, err
	}
	t := &Table{Title: IconLink + " Links", Headers: []string{"Peer", "Role", "State", "Since"}, Empty: "No links yet, use /connect <name>"}
	for _, l := range links {
		since := l.CreatedAt
		if !l.LinkedAt.IsZero() {
			since = l.LinkedAt
		}
		t.Rows = append(t.Rows, []string{l.RemoteName, l.Role.String(), l.State.String(), since.Format(time.Kitchen)})
	}
	return Reply{Table: t}, nil
}

func roomsTable(rooms []protocol.RoomInfo) *Table {
	t := &Table{Title: IconRoom + " Rooms", Headers: []string{"ID", "Name", "Members"}, Empty: "No rooms, use /room create <name>"}
	for _, r := range rooms {
		t.Rows = append(t.Rows, []string{r.ID, r.Name, fmt.Sprintf("%d", len(r.Members))})
	}
	return t
}

func helpTable() *Table {
	t := &Table{Title: "Commands", Headers: []string{"Command", "Description"}}
	for _, c := range commands {
		t.Rows = append(t.Rows, []string{c.usage, c.help})
	}
	t.Rows = append(t.Rows, []string{"<text>", "Send a message to every linked peer"})
	return t
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Greeting is shown when a chat front end starts.
var Greeting = []string{
	"Welcome! Set your name and connect to other users to start chatting.",
	"All messages are encrypted end-to-end using WebRTC DTLS. " + IconLock,
}
