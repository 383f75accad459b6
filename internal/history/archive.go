// Package history keeps a JSON record of every settled room-run on disk,
// one file per run under <dir>/<roomId>/<runId>.json.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lox/stakebingo/internal/bingo"
	"github.com/lox/stakebingo/internal/fileutil"
	"github.com/lox/stakebingo/internal/gameid"
	"github.com/lox/stakebingo/internal/room"
)

// Outcome is how a run ended.
type Outcome string

const (
	OutcomeWon      Outcome = "won"
	OutcomeNoWinner Outcome = "no_winner"
)

// Record is the archived result of one run.
type Record struct {
	RoomID             string       `json:"roomId"`
	RunID              string       `json:"runId"`
	Stake              int64        `json:"stake"`
	Outcome            Outcome      `json:"outcome"`
	WinnerID           string       `json:"winnerId,omitempty"`
	Username           string       `json:"username,omitempty"`
	Prize              int64        `json:"prize"`
	PlayerCountAtClaim int          `json:"playerCountAtClaim,omitempty"`
	Lines              []bingo.Line `json:"lines,omitempty"`
	Card               *bingo.Card  `json:"card,omitempty"`
	Refunded           []string     `json:"refunded,omitempty"`
	Calls              []bingo.Call `json:"calls"`
	SettledAt          time.Time    `json:"settledAt"`
}

const defaultBuffer = 64

// Archive is a room subscriber that writes settlement records on its own
// goroutine. Records that arrive while the buffer is full are dropped.
type Archive struct {
	dir     string
	logger  *log.Logger
	records chan Record
	dropped atomic.Int64
}

// New creates an archive rooted at dir.
func New(dir string, logger *log.Logger) *Archive {
	if logger == nil {
		logger = log.Default()
	}
	return &Archive{
		dir:     dir,
		logger:  logger.WithPrefix("history"),
		records: make(chan Record, defaultBuffer),
	}
}

// OnEvent implements room.Subscriber.
func (a *Archive) OnEvent(e room.Event) {
	var rec Record
	switch ev := e.(type) {
	case room.GameWonEvent:
		card := ev.Card
		rec = Record{
			Outcome:            OutcomeWon,
			WinnerID:           ev.WinnerID,
			Username:           ev.Username,
			Prize:              ev.Prize,
			PlayerCountAtClaim: ev.PlayerCountAtClaim,
			Lines:              ev.Lines,
			Card:               &card,
			Calls:              ev.Calls,
		}
	case room.GameSettledNoWinnerEvent:
		rec = Record{
			Outcome:  OutcomeNoWinner,
			Refunded: ev.Refunded,
			Calls:    ev.Calls,
		}
	default:
		return
	}
	meta := e.Source()
	rec.RoomID, rec.RunID, rec.Stake, rec.SettledAt = meta.RoomID, meta.RunID, meta.Stake, meta.At

	select {
	case a.records <- rec:
	default:
		a.dropped.Add(1)
		a.logger.Warn("Archive buffer full, dropping record", "room", rec.RoomID, "run", rec.RunID)
	}
}

// Dropped returns how many records were discarded.
func (a *Archive) Dropped() int64 {
	return a.dropped.Load()
}

// Run writes records until ctx is cancelled, then flushes what is buffered.
func (a *Archive) Run(ctx context.Context) error {
	for {
		select {
		case rec := <-a.records:
			a.write(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-a.records:
					a.write(rec)
				default:
					return nil
				}
			}
		}
	}
}

func (a *Archive) write(rec Record) {
	path, err := a.Path(rec.RoomID, rec.RunID)
	if err != nil {
		a.logger.Error("Refusing to archive run", "room", rec.RoomID, "run", rec.RunID, "error", err)
		return
	}
	if err := fileutil.WriteJSON(path, rec); err != nil {
		a.logger.Error("Failed to archive run", "path", path, "error", err)
		return
	}
	a.logger.Debug("Archived run", "path", path, "outcome", rec.Outcome)
}

// Path returns where the record for a run lives. Run IDs that are not
// well-formed are rejected so they cannot escape the archive directory.
func (a *Archive) Path(roomID, runID string) (string, error) {
	if err := gameid.Validate(runID); err != nil {
		return "", err
	}
	if roomID == "" || roomID != filepath.Base(roomID) {
		return "", fmt.Errorf("invalid room id %q", roomID)
	}
	return filepath.Join(a.dir, roomID, runID+".json"), nil
}

// Load reads an archived record.
func (a *Archive) Load(roomID, runID string) (Record, error) {
	var rec Record
	path, err := a.Path(roomID, runID)
	if err != nil {
		return rec, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return rec, nil
}
