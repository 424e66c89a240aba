package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lrhodin/unichat/pkg/engine"
	"github.com/lrhodin/unichat/pkg/models"
	"github.com/lrhodin/unichat/pkg/store"
)

var importCommand = &cli.Command{
	Name:      "import",
	Usage:     "Import channel records from a JSON-lines dump",
	ArgsUsage: "<dump file>",
	Before:    prepareApp,
	Action:    runImport,
}

// importRecord is one line of a dump file. Exactly one payload field is set,
// matching the type tag.
type importRecord struct {
	Type         string                      `json:"type"`
	Conversation *models.ChannelConversation `json:"conversation,omitempty"`
	Message      *models.Message             `json:"message,omitempty"`
	Participant  *models.Participant         `json:"participant,omitempty"`
	Attachment   *models.Attachment          `json:"attachment,omitempty"`
}

func runImport(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("usage: unichat import <dump file>")
	}
	path := ctx.Args().First()
	cfg := getConfig(ctx)
	log := getLogger(ctx)

	st, err := store.Open(ctx.Context, cfg.DatabasePath, log)
	if err != nil {
		return err
	}
	defer st.Close()

	eng, err := engine.New(ctx.Context, cfg, st, nil, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	total, err := countLines(path)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	tracker := eng.Tracker()
	tracker.ReportProgress(engine.StagePrimary, 0, total)

	processed := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec importRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			tracker.FailStage(engine.StagePrimary, err)
			return fmt.Errorf("bad record on line %d: %w", processed+1, err)
		}
		if err := applyRecord(ctx, eng, st, &rec); err != nil {
			tracker.FailStage(engine.StagePrimary, err)
			return fmt.Errorf("failed to import line %d: %w", processed+1, err)
		}
		processed++
		if processed%100 == 0 || processed == total {
			tracker.ReportProgress(engine.StagePrimary, processed, total)
		}
	}
	if err := scanner.Err(); err != nil {
		tracker.FailStage(engine.StagePrimary, err)
		return err
	}
	tracker.CompleteStage(engine.StagePrimary)

	log.Info().Int("records", processed).Str("path", path).Msg("Import complete")
	return nil
}

func applyRecord(ctx *cli.Context, eng *engine.Engine, st *store.Store, rec *importRecord) error {
	switch rec.Type {
	case "conversation":
		if rec.Conversation == nil {
			return fmt.Errorf("conversation record without payload")
		}
		_, err := eng.IngestConversation(ctx.Context, rec.Conversation)
		return err
	case "message":
		if rec.Message == nil {
			return fmt.Errorf("message record without payload")
		}
		return eng.IngestMessage(ctx.Context, rec.Message)
	case "participant":
		if rec.Participant == nil {
			return fmt.Errorf("participant record without payload")
		}
		return st.UpsertParticipant(ctx.Context, rec.Participant)
	case "attachment":
		if rec.Attachment == nil {
			return fmt.Errorf("attachment record without payload")
		}
		return st.UpsertAttachment(ctx.Context, rec.Attachment)
	default:
		return fmt.Errorf("unknown record type %q", rec.Type)
	}
}

func countLines(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	count := 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	return count, scanner.Err()
}
