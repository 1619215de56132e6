package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/modmount/modmount/internal/pkg/modules"
	"github.com/spf13/cobra"
)

type moduleRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
	Mode        string `json:"mode"`
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List enabled modules as JSON",
	Long:  `modules emits a JSON array of {id,name,version,author,description,mode} records, sorted by name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := modules.LoadModeOverrides(filepath.Join(cfg.ModuleDir, "mode_overrides"))
		if err != nil {
			return err
		}

		mods, err := modules.Scan(cfg.ModuleDir, overrides)
		if err != nil {
			enc := json.NewEncoder(os.Stdout)
			return enc.Encode(errorEnvelope{Error: err.Error()})
		}

		records := make([]moduleRecord, 0, len(mods))
		for _, m := range mods {
			prop, err := modules.Props(m)
			if err != nil {
				prop = modules.Prop{}
			}
			records = append(records, moduleRecord{
				ID:          m.ID,
				Name:        prop.Name,
				Version:     prop.Version,
				Author:      prop.Author,
				Description: prop.Description,
				Mode:        string(m.Mode),
			})
		}

		sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

		return json.NewEncoder(os.Stdout).Encode(records)
	},
}
