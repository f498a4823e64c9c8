package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manpreetbhatti/menuroom/internal/mutation"
)

// command is one parsed input line. Exactly one of mutation, chat or verb is
// meaningful.
type command struct {
	verb     string
	mutation mutation.Mutation
	chat     string
}

const usage = `commands:
  /swap <slot> <itemId>       replace the dish in a slot
  /select <slot>              include a slot in the order
  /unselect <slot>            leave a slot out
  /addon <itemId> <qty>       order an extra item, qty 0 removes it
  /comment <slot> <text>      comment on a slot
  /vote <slot> up|down|remove vote on a slot
  /lock, /unlock              host only
  /typing                     tell the room you are typing
  /away, /back                presence
  /catalog                    list the vendor's items
  /show                       print the menu
  /who                        list members
  /quit
anything else is sent as chat`

var errUsage = errors.New("unknown command, /help lists them")

// parseLine turns input into a command. author is used for comments, votes
// and chat.
func parseLine(line, author string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{chat: line}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, errUsage
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	switch verb {
	case "help", "typing", "away", "back", "catalog", "show", "who", "quit":
		return command{verb: verb}, nil

	case "swap":
		if len(args) != 2 {
			return command{}, errors.New("usage: /swap <slot> <itemId>")
		}
		slot, err := slotArg(args[0])
		if err != nil {
			return command{}, err
		}
		return command{mutation: mutation.SwapItem{SlotIndex: slot, NewItemID: args[1]}}, nil

	case "select", "unselect":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: /%s <slot>", verb)
		}
		slot, err := slotArg(args[0])
		if err != nil {
			return command{}, err
		}
		return command{mutation: mutation.ToggleSelection{SlotIndex: slot, IsSelected: verb == "select"}}, nil

	case "addon":
		if len(args) != 2 {
			return command{}, errors.New("usage: /addon <itemId> <qty>")
		}
		qty, err := strconv.Atoi(args[1])
		if err != nil || qty < 0 {
			return command{}, fmt.Errorf("invalid quantity %q", args[1])
		}
		return command{mutation: mutation.AddOrUpdateAddon{ItemID: args[0], Quantity: qty}}, nil

	case "comment":
		if len(args) < 2 {
			return command{}, errors.New("usage: /comment <slot> <text>")
		}
		slot, err := slotArg(args[0])
		if err != nil {
			return command{}, err
		}
		text := strings.Join(args[1:], " ")
		return command{mutation: mutation.AddComment{SlotIndex: slot, Text: text, AuthorName: author}}, nil

	case "vote":
		if len(args) != 2 {
			return command{}, errors.New("usage: /vote <slot> up|down|remove")
		}
		slot, err := slotArg(args[0])
		if err != nil {
			return command{}, err
		}
		vote := mutation.VoteType(strings.ToLower(args[1]))
		switch vote {
		case mutation.VoteUp, mutation.VoteDown, mutation.VoteRemove:
		default:
			return command{}, fmt.Errorf("invalid vote %q", args[1])
		}
		return command{mutation: mutation.VoteItem{SlotIndex: slot, VoteType: vote, VoterName: author}}, nil

	case "lock":
		return command{mutation: mutation.LockRoom{}}, nil
	case "unlock":
		return command{mutation: mutation.UnlockRoom{}}, nil
	}
	return command{}, errUsage
}

func slotArg(raw string) (int, error) {
	slot, err := strconv.Atoi(raw)
	if err != nil || slot < 0 {
		return 0, fmt.Errorf("invalid slot %q", raw)
	}
	return slot, nil
}
