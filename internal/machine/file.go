package machine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// FileProvider reads the machine record from a TOML file:
//
//	facility_id = 12
//	o3_flush = "30s"
//	entrance_timeout = "20s"
//
//	[pins]
//	o3_valve = 22
//	[pins.front]
//	open = 17
//	ir_beam = 23
//	closed_switch = 24
type FileProvider struct {
	Path string
}

func NewFileProvider(path string) *FileProvider {
	return &FileProvider{Path: path}
}

func (p *FileProvider) Source() string { return p.Path }

func (p *FileProvider) Load(_ context.Context) (*model.MachineConfig, error) {
	doc := newDocument()
	md, err := toml.DecodeFile(p.Path, &doc)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p.Path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", p.Path, strings.Join(keys, ", "))
	}
	return doc.config(), nil
}
