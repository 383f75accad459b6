package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lox/stakebingo/internal/room"
)

const requestTimeout = 5 * time.Second

// SnapshotCmd fetches the spectator snapshot of one room.
type SnapshotCmd struct {
	Stake int64  `kong:"required,help='Stake of the room'"`
	URL   string `kong:"default='http://localhost:8080',help='Server base URL'"`
	JSON  bool   `kong:"help='Print raw JSON'"`
}

func (c *SnapshotCmd) Run() error {
	var snap room.Snapshot
	if err := getJSON(c.URL, fmt.Sprintf("/rooms/%d/snapshot", c.Stake), &snap); err != nil {
		return err
	}
	if c.JSON {
		return printJSON(snap)
	}

	fmt.Printf("room:    %s\n", snap.RoomID)
	fmt.Printf("run:     %s\n", snap.RunID)
	fmt.Printf("state:   %s\n", snap.State)
	if snap.CountdownRemaining != nil {
		fmt.Printf("starts:  %ds\n", *snap.CountdownRemaining)
	}
	fmt.Printf("calls:   %d\n", len(snap.CallHistory))
	if n := len(snap.CallHistory); n > 0 {
		fmt.Printf("last:    %d\n", snap.CallHistory[n-1].Number)
	}
	if snap.WinnerID != nil {
		fmt.Printf("winner:  %s (prize %d, %d players)\n", *snap.WinnerID, snap.Prize, snap.PlayerCountAtClaim)
	}
	fmt.Printf("players: %d\n", len(snap.Players))
	for _, p := range snap.Players {
		status := "connected"
		if !p.Connected {
			status = "disconnected"
		}
		ticket := "-"
		if p.TicketNumber != 0 {
			ticket = fmt.Sprint(p.TicketNumber)
		}
		fmt.Printf("  %-20s ticket %-3s %s\n", p.Username, ticket, status)
	}
	return nil
}

// RoomsCmd lists the live rooms.
type RoomsCmd struct {
	URL  string `kong:"default='http://localhost:8080',help='Server base URL'"`
	JSON bool   `kong:"help='Print raw JSON'"`
}

func (c *RoomsCmd) Run() error {
	var out struct {
		Rooms []room.Summary `json:"rooms"`
	}
	if err := getJSON(c.URL, "/rooms", &out); err != nil {
		return err
	}
	if c.JSON {
		return printJSON(out)
	}
	if len(out.Rooms) == 0 {
		fmt.Println("no rooms")
		return nil
	}
	for _, s := range out.Rooms {
		fmt.Printf("%-12s %-10s players %d (%d connected) calls %d\n", s.RoomID, s.State, s.Players, s.Connected, s.Calls)
	}
	return nil
}

func getJSON(base, path string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
