package cli

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dyike/StockPilot/internal/dataflows"
	"github.com/dyike/StockPilot/internal/models"
	"github.com/dyike/StockPilot/pkg/utils"
)

const (
	reportFileName       = "report.md"
	conversationFileName = "conversation.json"
	runDirLayout         = "20060102-150405"
)

// ResultsStore keeps saved analyses under <root>/<TICKER>/<timestamp>/.
type ResultsStore struct {
	root string
}

type ResultSummary struct {
	Symbol    string    `json:"symbol"`
	CreatedAt time.Time `json:"created_at"`
	Dir       string    `json:"dir"`
	Preview   string    `json:"preview"`
}

func NewResultsStore(root string) *ResultsStore {
	return &ResultsStore{root: root}
}

// Save writes the final report as Markdown and the full conversation as JSON.
func (rs *ResultsStore) Save(state *models.ConversationState, at time.Time) (string, error) {
	dir := filepath.Join(rs.root, sanitizeFilename(state.Ticker), at.Format(runDirLayout))

	report := fmt.Sprintf("# %s\n\n> %s\n\n%s\n", state.Ticker, state.Question, state.Answer())
	if _, err := utils.WriteMarkdown(dir, reportFileName, report); err != nil {
		return "", err
	}
	if err := dataflows.SaveDataToFile(state, filepath.Join(dir, conversationFileName)); err != nil {
		return "", fmt.Errorf("save conversation: %w", err)
	}
	return dir, nil
}

// List returns saved runs, newest first.
func (rs *ResultsStore) List() ([]ResultSummary, error) {
	var results []ResultSummary
	err := filepath.WalkDir(rs.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || d.Name() != reportFileName {
			return nil
		}

		runDir := filepath.Dir(path)
		created, perr := time.ParseInLocation(runDirLayout, filepath.Base(runDir), time.Local)
		if perr != nil {
			return nil
		}
		content, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil
		}
		results = append(results, ResultSummary{
			Symbol:    filepath.Base(filepath.Dir(runDir)),
			CreatedAt: created,
			Dir:       runDir,
			Preview:   preview(string(content), 80),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// Load reads back a saved conversation.
func (rs *ResultsStore) Load(dir string) (*models.ConversationState, error) {
	data, err := os.ReadFile(filepath.Join(dir, conversationFileName))
	if err != nil {
		return nil, err
	}
	var state models.ConversationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", conversationFileName, err)
	}
	return &state, nil
}

// preview returns the first non-heading, non-quote line, cut to max runes.
func preview(report string, max int) string {
	for _, line := range strings.Split(report, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ">") {
			continue
		}
		runes := []rune(line)
		if len(runes) > max {
			return string(runes[:max]) + "..."
		}
		return line
	}
	return ""
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	name = replacer.Replace(strings.TrimSpace(name))
	if name == "" {
		return "unknown"
	}
	return name
}
