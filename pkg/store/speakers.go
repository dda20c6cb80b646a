package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// EmbeddingSize is the fixed length of speaker embedding vectors.
const EmbeddingSize = 512

// speakerMatchThreshold is the maximum Euclidean distance at which an
// embedding is considered the same voice.
const speakerMatchThreshold = 0.5

func embeddingToBlob(embedding []float32) []byte {
	blob := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

func blobToEmbedding(blob []byte) []float32 {
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return embedding
}

func embeddingDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// InsertSpeaker stores a new speaker for the embedding. No
// deduplication happens here; use GetSpeakerFromEmbedding first to
// reuse an existing identity.
func (d *Database) InsertSpeaker(ctx context.Context, embedding []float32) (Speaker, error) {
	if len(embedding) != EmbeddingSize {
		return Speaker{}, fmt.Errorf("%w: embedding must have %d dimensions, got %d",
			ErrStore, EmbeddingSize, len(embedding))
	}
	res, err := d.execContext(ctx,
		`INSERT INTO speakers (name, metadata, embedding) VALUES ('', '{}', ?)`,
		embeddingToBlob(embedding))
	if err != nil {
		return Speaker{}, err
	}
	id, _ := res.LastInsertId()
	return Speaker{ID: id, Metadata: "{}"}, nil
}

// GetSpeakerByID loads one speaker.
func (d *Database) GetSpeakerByID(ctx context.Context, id int64) (Speaker, error) {
	var s Speaker
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, metadata, hallucination FROM speakers WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &s.Metadata, &s.Hallucination)
	if err != nil {
		return Speaker{}, fmt.Errorf("%w: speaker %d: %v", ErrStore, id, err)
	}
	return s, nil
}

// UpdateSpeakerName names a speaker.
func (d *Database) UpdateSpeakerName(ctx context.Context, id int64, name string) error {
	_, err := d.execContext(ctx, `UPDATE speakers SET name = ? WHERE id = ?`, name, id)
	return err
}

// UpdateSpeakerMetadata replaces the metadata blob.
func (d *Database) UpdateSpeakerMetadata(ctx context.Context, id int64, metadata string) error {
	_, err := d.execContext(ctx, `UPDATE speakers SET metadata = ? WHERE id = ?`, metadata, id)
	return err
}

type speakerEmbedding struct {
	id        int64
	embedding []float32
}

func (d *Database) loadEmbeddings(ctx context.Context, cond string, args ...interface{}) ([]speakerEmbedding, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, embedding FROM speakers WHERE hallucination = 0`+cond, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var out []speakerEmbedding
	for rows.Next() {
		var se speakerEmbedding
		var blob []byte
		if err := rows.Scan(&se.id, &blob); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		se.embedding = blobToEmbedding(blob)
		out = append(out, se)
	}
	return out, rows.Err()
}

// GetSpeakerFromEmbedding returns the nearest non-hallucination
// speaker when its distance is within the match threshold, nil
// otherwise.
func (d *Database) GetSpeakerFromEmbedding(ctx context.Context, embedding []float32) (*Speaker, error) {
	candidates, err := d.loadEmbeddings(ctx, "")
	if err != nil {
		return nil, err
	}
	bestID := int64(-1)
	best := math.Inf(1)
	for _, c := range candidates {
		if dist := embeddingDistance(embedding, c.embedding); dist < best {
			best = dist
			bestID = c.id
		}
	}
	if bestID < 0 || best > speakerMatchThreshold {
		return nil, nil
	}
	s, err := d.GetSpeakerByID(ctx, bestID)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSimilarSpeakers returns up to limit nearest peers of the
// speaker, excluding itself, hallucinations, and speakers that no
// longer have audio rows.
func (d *Database) GetSimilarSpeakers(ctx context.Context, id int64, limit int) ([]Speaker, error) {
	var blob []byte
	if err := d.db.QueryRowContext(ctx,
		`SELECT embedding FROM speakers WHERE id = ?`, id).Scan(&blob); err != nil {
		return nil, fmt.Errorf("%w: speaker %d: %v", ErrStore, id, err)
	}
	subject := blobToEmbedding(blob)

	candidates, err := d.loadEmbeddings(ctx,
		` AND id != ? AND id IN (SELECT DISTINCT speaker_id FROM audio_transcriptions WHERE speaker_id IS NOT NULL)`,
		id)
	if err != nil {
		return nil, err
	}

	type scored struct {
		id   int64
		dist float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{id: c.id, dist: embeddingDistance(subject, c.embedding)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })
	if limit < len(ranked) {
		ranked = ranked[:limit]
	}

	speakers := make([]Speaker, 0, len(ranked))
	for _, r := range ranked {
		s, err := d.GetSpeakerByID(ctx, r.id)
		if err != nil {
			return nil, err
		}
		speakers = append(speakers, s)
	}
	return speakers, nil
}

// MergeSpeakers re-points every transcription row of loser to winner
// and deletes the loser, all in one transaction. The winner's name
// and metadata are untouched.
func (d *Database) MergeSpeakers(ctx context.Context, winnerID, loserID int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE audio_transcriptions SET speaker_id = ? WHERE speaker_id = ?`,
		winnerID, loserID); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM speakers WHERE id = ?`, loserID); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// DeleteSpeaker removes the speaker and cascades to its transcription
// rows. Deleting an absent speaker is a no-op.
func (d *Database) DeleteSpeaker(ctx context.Context, id int64) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM audio_transcriptions WHERE speaker_id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	var tids []int64
	for rows.Next() {
		var tid int64
		if err := rows.Scan(&tid); err != nil {
			rows.Close()
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
		tids = append(tids, tid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	for _, tid := range tids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM audio_transcriptions_fts WHERE rowid = ?`, tid); err != nil {
			return fmt.Errorf("%w: %v", ErrStore, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM audio_transcriptions WHERE speaker_id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM speakers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// MarkSpeakerAsHallucination hides the speaker from every listing and
// search while keeping its rows for referential integrity.
func (d *Database) MarkSpeakerAsHallucination(ctx context.Context, id int64) error {
	_, err := d.execContext(ctx, `UPDATE speakers SET hallucination = 1 WHERE id = ?`, id)
	return err
}

// GetUnnamedSpeakers lists speakers with no name, most active first,
// with each speaker's metadata augmented by an audio_samples array
// summarizing its transcription rows. restrictToIDs, when non-empty,
// bounds the candidate set.
func (d *Database) GetUnnamedSpeakers(ctx context.Context, limit, offset int, restrictToIDs []int64) ([]Speaker, error) {
	cs := &condSet{}
	cs.add(`s.name = ''`)
	cs.add(`s.hallucination = 0`)
	if len(restrictToIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(restrictToIDs)), ",")
		args := make([]interface{}, len(restrictToIDs))
		for i, id := range restrictToIDs {
			args[i] = id
		}
		cs.add(`s.id IN (`+placeholders+`)`, args...)
	}

	query := `SELECT s.id, s.name, s.metadata, COUNT(at.id) AS activity
		FROM speakers s
		LEFT JOIN audio_transcriptions at ON at.speaker_id = s.id` +
		cs.where() + `
		GROUP BY s.id
		ORDER BY activity DESC, s.id DESC
		LIMIT ? OFFSET ?`

	rows, err := d.db.QueryContext(ctx, query, append(cs.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var speakers []Speaker
	for rows.Next() {
		var s Speaker
		var activity int
		if err := rows.Scan(&s.ID, &s.Name, &s.Metadata, &activity); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		speakers = append(speakers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	for i := range speakers {
		augmented, err := d.augmentWithAudioSamples(ctx, speakers[i].ID, speakers[i].Metadata)
		if err != nil {
			return nil, err
		}
		speakers[i].Metadata = augmented
	}
	return speakers, nil
}

type audioSample struct {
	Path       string `json:"path"`
	Transcript string `json:"transcript"`
}

func (d *Database) augmentWithAudioSamples(ctx context.Context, speakerID int64, metadata string) (string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT ac.file_path, at.transcription
		 FROM audio_transcriptions at
		 JOIN audio_chunks ac ON at.audio_chunk_id = ac.id
		 WHERE at.speaker_id = ?
		 ORDER BY at.timestamp DESC, at.id DESC`,
		speakerID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	samples := []audioSample{}
	for rows.Next() {
		var s audioSample
		if err := rows.Scan(&s.Path, &s.Transcript); err != nil {
			return "", fmt.Errorf("%w: %v", ErrStore, err)
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}

	meta := map[string]interface{}{}
	if strings.TrimSpace(metadata) != "" {
		if err := json.Unmarshal([]byte(metadata), &meta); err != nil {
			meta = map[string]interface{}{}
		}
	}
	meta["audio_samples"] = samples
	out, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}
	return string(out), nil
}

// SearchSpeakers lists named, visible speakers whose name contains
// the query. An empty query lists them all.
func (d *Database) SearchSpeakers(ctx context.Context, name string) ([]Speaker, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, name, metadata, hallucination FROM speakers
		 WHERE name != '' AND hallucination = 0 AND name LIKE '%' || ? || '%'
		 ORDER BY name ASC, id ASC`,
		name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var speakers []Speaker
	for rows.Next() {
		var s Speaker
		if err := rows.Scan(&s.ID, &s.Name, &s.Metadata, &s.Hallucination); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		speakers = append(speakers, s)
	}
	return speakers, rows.Err()
}

// GetAudioChunksForSpeaker lists the artifacts that still reference
// the speaker.
func (d *Database) GetAudioChunksForSpeaker(ctx context.Context, speakerID int64) ([]AudioChunk, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT DISTINCT ac.id, ac.file_path, ac.timestamp
		 FROM audio_chunks ac
		 JOIN audio_transcriptions at ON at.audio_chunk_id = ac.id
		 WHERE at.speaker_id = ?`,
		speakerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var chunks []AudioChunk
	for rows.Next() {
		var c AudioChunk
		if err := rows.Scan(&c.ID, &c.FilePath, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
