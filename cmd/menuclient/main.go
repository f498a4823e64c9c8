// Command menuclient joins a menu room from the terminal. Edits are shown
// immediately and corrected when the server answers.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/manpreetbhatti/menuroom/client"
	"github.com/manpreetbhatti/menuroom/internal/catalog"
	"github.com/manpreetbhatti/menuroom/internal/menu"
	"github.com/manpreetbhatti/menuroom/internal/protocol"
	"github.com/spf13/pflag"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2

	joinTimeout = 5 * time.Second
)

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "menuclient: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	flags := pflag.NewFlagSet("menuclient", pflag.ContinueOnError)
	flags.StringVar(&cfg.URL, "url", cfg.URL, "websocket endpoint")
	flags.StringVar(&cfg.APIURL, "api", cfg.APIURL, "HTTP API base URL")
	flags.StringVarP(&cfg.Room, "room", "r", cfg.Room, "room to join")
	flags.StringVarP(&cfg.UserID, "user", "u", cfg.UserID, "your user id")
	flags.StringVarP(&cfg.Name, "name", "n", cfg.Name, "display name")
	flags.BoolVar(&cfg.Colours, "colours", cfg.Colours, "colourised output")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK, nil
		}
		return exitConfig, err
	}
	if err := cfg.Validate(); err != nil {
		return exitConfig, err
	}

	log := logs.GetLoggerFromString(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := &console{out: os.Stdout, colours: cfg.Colours}
	w := &watcher{room: cfg.Room, self: cfg.Name, out: out}

	c, err := client.Dial(ctx, cfg.URL,
		client.WithLogger(log),
		client.WithOnChange(w.onChange))
	if err != nil {
		return exitRuntime, err
	}
	defer c.Close()
	w.client.Store(c)

	if err := c.Join(cfg.Room, cfg.UserID, cfg.Name); err != nil {
		return exitRuntime, err
	}
	doc, err := awaitDocument(ctx, c, cfg.Room)
	if err != nil {
		return exitRuntime, err
	}
	out.menu(doc)

	items, err := fetchCatalog(ctx, cfg.APIURL, doc.VendorID)
	if err != nil {
		// Predictions fall back to the server's answer.
		log.Warn("Catalog unavailable, swaps are shown once confirmed", "error", err)
	}
	lookup := catalog.NewMemory(items...)
	out.info("joined %s as %s, /help lists commands", cfg.Room, cfg.Name)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case <-c.Done():
			return exitRuntime, errors.New("connection closed by server")
		case err, ok := <-c.Errors():
			if ok {
				out.errorf("%v", err)
			}
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			quit, err := execute(c, cfg, lookup, items, out, line)
			if err != nil {
				out.errorf("%v", err)
			}
			if quit {
				return exitOK, nil
			}
		}
	}
}

func execute(c *client.Client, cfg Config, lookup catalog.Lookup, items []catalog.Item, out *console, line string) (bool, error) {
	cmd, err := parseLine(line, cfg.Name)
	if err != nil {
		return false, err
	}

	switch {
	case cmd.mutation != nil:
		_, err := c.Mutate(cfg.Room, cfg.UserID, cmd.mutation, client.Predict(cmd.mutation, cfg.UserID, lookup))
		return false, err
	case cmd.chat != "":
		_, err := c.Chat(cfg.Room, cfg.UserID, cfg.Name, cmd.chat)
		return false, err
	}

	switch cmd.verb {
	case "help":
		out.println(usage)
	case "typing":
		return false, c.SetTyping(cfg.Room, cfg.Name, true)
	case "away", "back":
		return false, c.SetPresence(cfg.Room, cfg.Name, cmd.verb == "back")
	case "catalog":
		out.catalog(items)
	case "show":
		doc, err := c.Document(cfg.Room)
		if err != nil {
			return false, err
		}
		out.menu(doc)
	case "who":
		out.members(c.Members(cfg.Room))
	case "quit":
		_ = c.Leave(cfg.Room)
		return true, nil
	}
	return false, nil
}

// watcher reports room activity as it arrives. It only runs on the client's
// read goroutine.
type watcher struct {
	room   string
	self   string
	out    *console
	client atomic.Pointer[client.Client]

	seenChat int
	typing   string
}

func (w *watcher) onChange(kind protocol.Kind, roomID string) {
	c := w.client.Load()
	if c == nil || roomID != w.room {
		return
	}

	switch kind {
	case protocol.KindRoomState:
		doc, err := c.Document(roomID)
		if err != nil {
			return
		}
		if w.seenChat > len(doc.ChatMessages) {
			w.seenChat = 0
		}
		for _, entry := range doc.ChatMessages[w.seenChat:] {
			w.out.chat(entry)
		}
		w.seenChat = len(doc.ChatMessages)
		if doc.UpdatedBy != "" {
			w.out.info("total %.2f, last change by %s", doc.TotalPrice, doc.UpdatedBy)
		}

	case protocol.KindPresenceSync:
		w.out.members(c.Members(roomID))

	case protocol.KindUserTyping:
		var others []string
		for _, name := range c.TypingUsers(roomID) {
			if name != w.self {
				others = append(others, name)
			}
		}
		typing := strings.Join(others, ", ")
		if typing != "" && typing != w.typing {
			w.out.info("%s typing...", typing)
		}
		w.typing = typing
	}
}

// awaitDocument waits for the first room_state after a join. A join the
// server refuses arrives on Errors instead.
func awaitDocument(ctx context.Context, c *client.Client, roomID string) (*menu.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if doc, err := c.Document(roomID); err == nil {
			return doc, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("join %s: %w", roomID, ctx.Err())
		case err, ok := <-c.Errors():
			if ok {
				return nil, fmt.Errorf("join %s: %w", roomID, err)
			}
			return nil, errors.New("connection closed by server")
		case <-ticker.C:
		}
	}
}

type catalogResponse struct {
	VendorID string         `json:"vendorId"`
	Items    []catalog.Item `json:"items"`
}

// fetchCatalog loads the vendor's items from the HTTP API, in menu order.
func fetchCatalog(ctx context.Context, apiURL, vendorID string) ([]catalog.Item, error) {
	endpoint, err := url.JoinPath(apiURL, "api", "vendors", vendorID, "catalog")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", endpoint, resp.Status)
	}

	var body catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return body.Items, nil
}
