package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/2beens/trainlog/internal/trainlog"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

func exportSnapshot(w io.Writer, snapshot trainlog.Snapshot, format string) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snapshot); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// importSnapshot decodes an exported snapshot. Entries with invalid keys or payloads
// that do not fit the key kind are dropped and counted.
func importSnapshot(raw []byte, format string) (_ trainlog.Snapshot, dropped int, err error) {
	decoded := make(map[string]any)
	switch format {
	case formatYAML:
		err = yaml.Unmarshal(raw, &decoded)
	case formatJSON:
		err = json.Unmarshal(raw, &decoded)
	default:
		err = fmt.Errorf("unknown format: %s", format)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("decode snapshot: %w", err)
	}

	snapshot := make(trainlog.Snapshot, len(decoded))
	for rawKey, payload := range decoded {
		key, err := trainlog.DecodeKey(rawKey)
		if err != nil {
			log.Warnf("import: drop entry: %s", err)
			dropped++
			continue
		}

		normalized, ok := normalizePayload(key.Kind, payload)
		if !ok {
			log.Warnf("import: drop entry [%s]: unexpected payload %v", rawKey, payload)
			dropped++
			continue
		}
		snapshot[rawKey] = normalized
	}

	return snapshot, dropped, nil
}

// normalizePayload keeps flags as bools and values as strings; YAML hands back bare
// numbers as ints or floats.
func normalizePayload(kind trainlog.Kind, payload any) (any, bool) {
	switch kind {
	case trainlog.KindCompletion:
		done, ok := payload.(bool)
		return done, ok
	case trainlog.KindValue:
		switch v := payload.(type) {
		case string:
			return v, true
		case int:
			return strconv.Itoa(v), true
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), true
		default:
			return nil, false
		}
	default:
		return nil, false
	}
}
