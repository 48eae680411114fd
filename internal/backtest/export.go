package backtest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// Row is one replayed event in the parquet export.
type Row struct {
	Instrument   string `parquet:"instrument"`
	Resolution   string `parquet:"resolution"`
	Kind         string `parquet:"kind"`
	Importance   int32  `parquet:"importance"`
	DetectedAtMs int64  `parquet:"detected_at_ms"`
	Message      string `parquet:"message"`
	WouldNotify  bool   `parquet:"would_notify"`
}

// WriteParquet writes every replayed event of reports to path.
func WriteParquet(path string, reports []Report) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	if err := parquet.WriteFile(path, Rows(reports)); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}
