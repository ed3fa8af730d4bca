package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hubwire/hubwire/internal/client"
	"github.com/hubwire/hubwire/internal/store"
	"github.com/hubwire/hubwire/pkg/wire"
)

func main() {
	serverAddr := flag.String("server", "localhost:3000", "Hub address (host:port or ws:// URL)")
	username := flag.String("username", "Anonymous", "Display name for chat")
	dataFile := flag.String("data", "messages.json", "Path to the local message log")
	local := flag.Bool("local", false, "Run offline: append messages to the local log instead of connecting")
	flag.Parse()

	messageLog := store.New(*dataFile)

	if *local {
		runLocal(messageLog, *username)
		return
	}

	c := client.New()

	c.OnMessage(func(msg wire.ChatMessage) {
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp, msg.Username, msg.Text)
	})
	c.OnUserJoined(func(joined wire.UserJoined) {
		fmt.Printf("*** %s joined the chat (%d online) ***\n", joined.DisplayName, joined.TotalUsers)
	})
	c.OnUserLeft(func(left wire.UserLeft) {
		fmt.Printf("*** %s left the chat (%d online) ***\n", left.DisplayName, left.TotalUsers)
	})
	c.OnUserList(func(list wire.UserList) {
		fmt.Printf("*** online: %s ***\n", strings.Join(list.DisplayNames, ", "))
	})
	c.OnDisconnected(func(err error) {
		fmt.Println("*** disconnected from hub; messages will be kept locally ***")
	})

	if err := c.Connect(context.Background(), *serverAddr, *username); err != nil {
		log.Fatalf("Failed to connect to hub: %v", err)
	}
	defer c.Disconnect()

	log.Printf("Connected to %s as %s", *serverAddr, *username)

	// Read from stdin and send messages; anything the hub cannot take goes
	// into the local log instead.
	fmt.Println("Type your messages (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" {
			break
		}

		if err := c.SendMessage(text); err != nil {
			if appendErr := messageLog.Append(localMessage(*username, text)); appendErr != nil {
				log.Printf("Failed to save message locally: %v", appendErr)
				continue
			}
			fmt.Println("*** not connected; message saved locally ***")
		}
	}
}

// runLocal appends stdin lines to the local log without connecting.
func runLocal(messageLog *store.Store, username string) {
	history, err := messageLog.LoadAll()
	if err != nil {
		log.Fatalf("Failed to load local messages: %v", err)
	}
	for _, msg := range history {
		fmt.Printf("[%s] %s: %s\n", msg.Timestamp, msg.Username, msg.Text)
	}

	fmt.Println("Local mode. Type your messages (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" {
			return
		}

		if err := messageLog.Append(localMessage(username, text)); err != nil {
			log.Printf("Failed to save message: %v", err)
		}
	}
}

// localMessage builds a message stamped locally. Ids in the local log only
// need to be unique within the file, so wall-clock milliseconds suffice.
func localMessage(username, text string) wire.ChatMessage {
	now := time.Now().UTC()
	return wire.ChatMessage{
		ID:        now.UnixMilli(),
		Username:  username,
		Text:      text,
		Timestamp: now.Format(time.RFC3339),
	}
}
