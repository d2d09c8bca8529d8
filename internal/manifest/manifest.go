// Package manifest parses the update manifest published alongside game
// releases: the available patches, the latest version, and per-DLC section
// metadata used for integrity verification.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/xor-128/TheSims4Updater/internal/patch"
	"github.com/xor-128/TheSims4Updater/internal/version"
)

const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["game", "patches"],
  "properties": {
    "game": {"type": "string", "minLength": 1},
    "patches": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["from", "to", "files"],
        "properties": {
          "from": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)*$"},
          "to": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)*$"},
          "files": {"type": "array", "items": {"type": "string", "minLength": 1}, "minItems": 1},
          "compressedSize": {"type": "integer", "minimum": 0},
          "uncompressedSize": {"type": "integer", "minimum": 0}
        }
      }
    },
    "sections": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "totalSize": {"type": "integer", "minimum": 0},
          "checksums": {"type": "string"}
        }
      }
    }
  }
}`

var schema = jsonschema.MustCompileString("manifest.schema.json", schemaJSON)

// Manifest is the parsed update manifest. Read-only after Parse.
type Manifest struct {
	Game     string
	Patches  []patch.Descriptor
	Sections map[string]Section
}

// Section holds per-DLC metadata: the total installed size and, when the
// publisher ships one, a packed list of expected file checksums.
type Section struct {
	Name      string
	TotalSize int64
	packed    string // base64 of the xz-compressed checksum list
}

type rawManifest struct {
	Game     string                `json:"game"`
	Patches  []rawPatch            `json:"patches"`
	Sections map[string]rawSection `json:"sections"`
}

type rawPatch struct {
	From             string   `json:"from"`
	To               string   `json:"to"`
	Files            []string `json:"files"`
	CompressedSize   int64    `json:"compressedSize"`
	UncompressedSize int64    `json:"uncompressedSize"`
}

type rawSection struct {
	TotalSize int64  `json:"totalSize"`
	Checksums string `json:"checksums"`
}

// Parse validates data against the manifest schema and builds the Manifest.
func Parse(data []byte) (*Manifest, error) {
	doc, err := jsonschemav6.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validating manifest: %w", err)
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	m := &Manifest{
		Game:     raw.Game,
		Sections: make(map[string]Section, len(raw.Sections)),
	}
	for _, p := range raw.Patches {
		from, err := version.Parse(p.From)
		if err != nil {
			return nil, fmt.Errorf("patch from version: %w", err)
		}
		to, err := version.Parse(p.To)
		if err != nil {
			return nil, fmt.Errorf("patch to version: %w", err)
		}
		m.Patches = append(m.Patches, patch.Descriptor{
			From:             from,
			To:               to,
			Files:            p.Files,
			CompressedSize:   p.CompressedSize,
			UncompressedSize: p.UncompressedSize,
		})
	}
	for name, s := range raw.Sections {
		m.Sections[name] = Section{Name: name, TotalSize: s.TotalSize, packed: s.Checksums}
	}
	return m, nil
}

// Section returns the named section's metadata.
func (m *Manifest) Section(name string) (Section, bool) {
	s, ok := m.Sections[name]
	return s, ok
}
