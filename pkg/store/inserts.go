package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lokutor-ai/recall/pkg/audio"
)

// InsertVideoChunk records a video artifact for a capture device and
// returns its id.
func (d *Database) InsertVideoChunk(ctx context.Context, filePath, deviceName string) (int64, error) {
	res, err := d.execContext(ctx,
		`INSERT INTO video_chunks (file_path, device_name) VALUES (?, ?)`,
		filePath, deviceName)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// InsertFrame attaches a frame to the device's most recent video
// chunk. A zero ts means now.
func (d *Database) InsertFrame(ctx context.Context, deviceName string, ts time.Time, name, appName, windowName, browserURL string, focused bool) (int64, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	var chunkID int64
	err := d.db.QueryRowContext(ctx,
		`SELECT id FROM video_chunks WHERE device_name = ? ORDER BY id DESC LIMIT 1`,
		deviceName).Scan(&chunkID)
	if err != nil {
		return 0, fmt.Errorf("%w: no video chunk for device %q: %v", ErrStore, deviceName, err)
	}

	var offset int64
	if err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(offset_index)+1, 0) FROM frames WHERE video_chunk_id = ?`,
		chunkID).Scan(&offset); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}

	res, err := d.execContext(ctx,
		`INSERT INTO frames (video_chunk_id, offset_index, timestamp, name, app_name, window_name, browser_url, focused)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		chunkID, offset, ts.UTC(), name, appName, windowName, browserURL, focused)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// InsertOCRText stores recognized text for a frame and indexes it.
func (d *Database) InsertOCRText(ctx context.Context, frameID int64, text, textJSON, engine string) error {
	var appName, windowName, browserURL string
	if err := d.db.QueryRowContext(ctx,
		`SELECT app_name, window_name, browser_url FROM frames WHERE id = ?`,
		frameID).Scan(&appName, &windowName, &browserURL); err != nil {
		return fmt.Errorf("%w: frame %d: %v", ErrStore, frameID, err)
	}
	if _, err := d.execContext(ctx,
		`INSERT INTO ocr_text (frame_id, text, text_json, ocr_engine) VALUES (?, ?, ?, ?)`,
		frameID, text, textJSON, engine); err != nil {
		return err
	}
	_, err := d.execContext(ctx,
		`INSERT INTO ocr_text_fts (rowid, text, app_name, window_name, browser_url)
		 VALUES (?, ?, ?, ?, ?)`,
		frameID, text, appName, windowName, browserURL)
	return err
}

// InsertAudioChunk records an encoded clip artifact.
func (d *Database) InsertAudioChunk(ctx context.Context, filePath string) (int64, error) {
	res, err := d.execContext(ctx,
		`INSERT INTO audio_chunks (file_path, timestamp) VALUES (?, ?)`,
		filePath, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

// InsertAudioTranscription stores one transcription row and indexes
// it. speakerID, startOffset and endOffset may be nil.
func (d *Database) InsertAudioTranscription(ctx context.Context, chunkID int64, transcription string, offsetIndex int64, engine string, device audio.AudioDevice, speakerID *int64, startOffset, endOffset *float64) (int64, error) {
	res, err := d.execContext(ctx,
		`INSERT INTO audio_transcriptions
			(audio_chunk_id, offset_index, timestamp, transcription, transcription_engine,
			 device, is_input_device, speaker_id, start_time, end_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		chunkID, offsetIndex, time.Now().UTC(), transcription, engine,
		device.Name, device.Kind == audio.KindInput, speakerID, startOffset, endOffset)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	if _, err := d.execContext(ctx,
		`INSERT INTO audio_transcriptions_fts (rowid, transcription, device) VALUES (?, ?, ?)`,
		id, transcription, device.Name); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateAudioTranscription replaces the text of every transcription
// row of a chunk in place.
func (d *Database) UpdateAudioTranscription(ctx context.Context, chunkID int64, transcription string) (int64, error) {
	res, err := d.execContext(ctx,
		`UPDATE audio_transcriptions SET transcription = ? WHERE audio_chunk_id = ?`,
		transcription, chunkID)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, device FROM audio_transcriptions WHERE audio_chunk_id = ?`, chunkID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()
	type ftsRow struct {
		id     int64
		device string
	}
	var updates []ftsRow
	for rows.Next() {
		var r ftsRow
		if err := rows.Scan(&r.id, &r.device); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStore, err)
		}
		updates = append(updates, r)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	for _, r := range updates {
		if _, err := d.execContext(ctx,
			`DELETE FROM audio_transcriptions_fts WHERE rowid = ?`, r.id); err != nil {
			return 0, err
		}
		if _, err := d.execContext(ctx,
			`INSERT INTO audio_transcriptions_fts (rowid, transcription, device) VALUES (?, ?, ?)`,
			r.id, transcription, r.device); err != nil {
			return 0, err
		}
	}
	return affected, nil
}

// InsertUISnapshot stores one accessibility-tree snapshot.
func (d *Database) InsertUISnapshot(ctx context.Context, text string, ts time.Time, app, window string, initialTraversalAt time.Time) (int64, error) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if initialTraversalAt.IsZero() {
		initialTraversalAt = ts
	}
	res, err := d.execContext(ctx,
		`INSERT INTO ui_monitoring (text_output, timestamp, app, window, initial_traversal_at)
		 VALUES (?, ?, ?, ?, ?)`,
		text, ts.UTC(), app, window, initialTraversalAt.UTC())
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	if _, err := d.execContext(ctx,
		`INSERT INTO ui_monitoring_fts (rowid, text_output, app, window) VALUES (?, ?, ?, ?)`,
		id, text, app, window); err != nil {
		return 0, err
	}
	return id, nil
}
