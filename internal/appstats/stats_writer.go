package appstats

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	log "github.com/sirupsen/logrus"
)

// StatsFileOutput is the on-disk dump of the averaged latency snapshots,
// written when the player shuts down so a session can be analyzed
// offline.
type StatsFileOutput struct {
	Snapshots      map[string]interface{} `json:"snapshots"`
	StatsTimestamp int64                  `json:"statsTimestamp"`
}

type StatsFileWriter struct {
	basePath string
	fileMode os.FileMode
}

func NewStatsFileWriter(basePath string, fileMode os.FileMode) *StatsFileWriter {
	return &StatsFileWriter{
		basePath: basePath,
		fileMode: fileMode,
	}
}

func (w *StatsFileWriter) WriteStats(name string, stats *StatsFileOutput) error {
	statsFilePath := path.Join(w.basePath, fmt.Sprintf("%s-stats.json", name))

	jsonData, err := json.MarshalIndent(stats, "", "  ")

	if err != nil {
		return fmt.Errorf("JSON marshalling failed: %w", err)
	}

	if err := os.WriteFile(statsFilePath, jsonData, w.fileMode); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}

	log.WithField("path", statsFilePath).
		Tracef("wrote session latency stats to file")

	return nil
}
