package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"conquest/application/state/memory"
	core "conquest/domain"
)

//go:embed states.schema.json
var statesSchemaSource string

var ErrInvalidStates = errors.New("config: invalid state fixture")

var statesSchema = jsonschema.MustCompileString("states.schema.json", statesSchemaSource)

// StateFixture はチェーン状態のスナップショットファイル
type StateFixture struct {
	SyncedAt int64          `json:"synced_at,omitempty"`
	Planets  []PlanetRecord `json:"planets"`
}

type PlanetRecord struct {
	X             int32  `json:"x"`
	Y             int32  `json:"y"`
	Owner         string `json:"owner,omitempty"`
	NumSpaceships uint32 `json:"num_spaceships,omitempty"`
	Natives       bool   `json:"natives"`
	LastUpdated   int64  `json:"last_updated,omitempty"`
}

// LoadStates はフィクスチャを読み、スキーマ検証したうえでストアの初期レコードに変換する。
// 拡張子が .zst のファイルは zstd で展開してから読む。
func LoadStates(path string) ([]memory.PlanetRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer dec.Close()
		r = dec
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	records, err := ParseStates(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// ParseStates は JSON のフィクスチャを検証して変換する
func ParseStates(b []byte) ([]memory.PlanetRecord, error) {
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStates, err)
	}
	if err := statesSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStates, err)
	}

	var fixture StateFixture
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fixture); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStates, err)
	}

	seen := make(map[core.Location]struct{}, len(fixture.Planets))
	records := make([]memory.PlanetRecord, 0, len(fixture.Planets))
	for _, p := range fixture.Planets {
		loc := core.Location{X: p.X, Y: p.Y}
		if _, ok := seen[loc]; ok {
			return nil, fmt.Errorf("%w: duplicate planet at (%d,%d)", ErrInvalidStates, p.X, p.Y)
		}
		seen[loc] = struct{}{}

		state := core.PlanetState{
			Owner:         p.Owner,
			NumSpaceships: p.NumSpaceships,
			Natives:       p.Natives,
		}
		if err := memory.ValidateState(loc, state); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidStates, err)
		}

		lastUpdated := p.LastUpdated
		if lastUpdated == 0 {
			lastUpdated = fixture.SyncedAt
		}
		state.LastUpdated = lastUpdated
		records = append(records, memory.PlanetRecord{Location: loc, State: state})
	}
	return records, nil
}

// WriteStates はフィクスチャを書き出す。.zst なら zstd で圧縮する。
func WriteStates(path string, fixture StateFixture) error {
	b, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return writeStates(f, b, strings.HasSuffix(path, ".zst"))
}

// writeStates は b を w に書いて閉じる。Close の失敗も書き込み失敗として返す。
func writeStates(w io.WriteCloser, b []byte, compress bool) error {
	if err := encodeStates(w, b, compress); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func encodeStates(w io.Writer, b []byte, compress bool) error {
	if !compress {
		_, err := w.Write(b)
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if _, err := enc.Write(b); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
