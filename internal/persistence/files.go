package persistence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/kingdoms/internal/engine"
	"github.com/talgya/kingdoms/internal/letters"
	"github.com/talgya/kingdoms/internal/social"
)

// FileHeader is the first line of a snapshot file. It can be read without
// decoding the body.
type FileHeader struct {
	Version  int    `json:"version"`
	Tick     uint64 `json:"tick"`
	Kingdoms int    `json:"kingdoms"`
}

// WriteSnapshot writes s to path as zstd-compressed JSON: a header line
// followed by the snapshot body.
func WriteSnapshot(path string, s Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := EncodeSnapshot(f, s); err != nil {
		return err
	}
	return f.Close()
}

// EncodeSnapshot writes the compressed form of s to w.
func EncodeSnapshot(w io.Writer, s Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(FileHeader{Version: s.Version, Tick: s.Tick, Kingdoms: len(s.Kingdoms)})
	if _, err := bw.Write(hb); err != nil {
		enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&s); err != nil {
		enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot reads a file written by WriteSnapshot.
func ReadSnapshot(path string) (Snapshot, Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, nil, err
	}
	defer f.Close()
	return DecodeSnapshot(f)
}

// fileBody mirrors Snapshot with the letters left raw, so that one
// unreadable letter is dropped on its own instead of failing the file.
type fileBody struct {
	Snapshot
	Mail      map[social.PlayerID][]json.RawMessage `json:"mail"`
	Responses []queuedBody                          `json:"responses"`
}

type queuedBody struct {
	Letter json.RawMessage `json:"letter"`
	Due    uint64          `json:"due"`
	Seq    uint64          `json:"seq"`
}

func decodeLetter(raw json.RawMessage) (letters.Letter, error) {
	var w letters.Wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return letters.Letter{}, err
	}
	return letters.Decode(w)
}

// DecodeSnapshot reads a compressed snapshot from r. Snapshots from a newer
// layout are refused. Letters that fail to decode are dropped and counted
// in the report.
func DecodeSnapshot(r io.Reader) (Snapshot, Report, error) {
	rep := Report{}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Snapshot{}, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return Snapshot{}, nil, fmt.Errorf("read header: %w", err)
	}
	var h FileHeader
	if err := json.Unmarshal(line, &h); err != nil {
		return Snapshot{}, nil, fmt.Errorf("decode header: %w", err)
	}
	if h.Version > SnapshotVersion {
		return Snapshot{}, nil, fmt.Errorf("snapshot version %d is newer than supported %d", h.Version, SnapshotVersion)
	}

	var body fileBody
	if err := json.NewDecoder(br).Decode(&body); err != nil {
		return Snapshot{}, nil, fmt.Errorf("json decode: %w", err)
	}
	s := body.Snapshot
	s.Mail = make(map[social.PlayerID][]letters.Letter, len(body.Mail))
	for p, raws := range body.Mail {
		for _, raw := range raws {
			l, err := decodeLetter(raw)
			if err != nil {
				slog.Debug("dropping unreadable letter", "player", p, "error", err)
				rep.add("letters", 1)
				continue
			}
			s.Mail[p] = append(s.Mail[p], l)
		}
	}
	s.Responses = nil
	for _, q := range body.Responses {
		l, err := decodeLetter(q.Letter)
		if err != nil {
			slog.Debug("dropping unreadable queued letter", "seq", q.Seq, "error", err)
			rep.add("responses", 1)
			continue
		}
		s.Responses = append(s.Responses, engine.Queued{Letter: l, Due: q.Due, Seq: q.Seq})
	}
	return s, rep, nil
}

// SnapshotName is the file name used for a snapshot taken at tick.
func SnapshotName(tick uint64) string {
	return fmt.Sprintf("world-%012d.json.zst", tick)
}
