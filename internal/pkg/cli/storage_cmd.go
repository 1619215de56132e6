package cli

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/modmount/modmount/internal/pkg/state"
	"github.com/modmount/modmount/internal/pkg/storage"
	"github.com/spf13/cobra"
)

type storageReport struct {
	Size    uint64  `json:"size"`
	Used    uint64  `json:"used"`
	Percent float64 `json:"percent"`
	Type    string  `json:"type"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Report staging storage usage as JSON",
	Long:  `storage emits one JSON object with size, used, percent and type, read from the persisted runtime state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(os.Stdout)

		st, err := state.Read(filepath.Join(cfg.TempDir, stateFileName))
		if err != nil {
			return enc.Encode(errorEnvelope{Error: "Not mounted"})
		}

		size, used, percent, err := storage.Usage(st.MountPoint)
		if err != nil {
			return enc.Encode(errorEnvelope{Error: err.Error()})
		}

		return enc.Encode(storageReport{
			Size:    size,
			Used:    used,
			Percent: percent,
			Type:    st.StorageMode,
		})
	},
}

// stateFileName matches engine.stateFile, which is unexported, so the
// name is repeated here as a local constant.
const stateFileName = "state"
