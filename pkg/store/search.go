package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/lokutor-ai/recall/pkg/audio"
)

// ftsMatchExpr turns a user query into an FTS5 MATCH expression. A
// "text:" prefix restricts the match to the primary text column;
// anything else matches across every indexed column.
func ftsMatchExpr(q, textColumn string) string {
	q = strings.TrimSpace(q)
	column := ""
	if rest, ok := strings.CutPrefix(q, "text:"); ok {
		q = strings.TrimSpace(rest)
		column = textColumn + ": "
	}
	escaped := strings.ReplaceAll(q, `"`, `""`)
	return fmt.Sprintf(`%s"%s"`, column, escaped)
}

type condSet struct {
	conds []string
	args  []interface{}
}

func (c *condSet) add(cond string, args ...interface{}) {
	c.conds = append(c.conds, cond)
	c.args = append(c.args, args...)
}

func (c *condSet) where() string {
	if len(c.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.conds, " AND ")
}

// Search returns matching rows of the requested kind(s), ordered by
// (timestamp DESC, id DESC). For ContentTypeAll the three kinds are
// merged by timestamp before limit/offset apply to the union.
func (d *Database) Search(ctx context.Context, q string, kind ContentType, limit, offset int, opts SearchOptions) ([]SearchResult, error) {
	switch kind {
	case ContentTypeOCR:
		return d.searchOCR(ctx, q, limit, offset, opts)
	case ContentTypeAudio:
		return d.searchAudio(ctx, q, limit, offset, opts)
	case ContentTypeUI:
		return d.searchUI(ctx, q, limit, offset, opts)
	case ContentTypeAll:
		// fetch enough of every kind to fill the page after merging
		span := limit + offset
		ocr, err := d.searchOCR(ctx, q, span, 0, opts)
		if err != nil {
			return nil, err
		}
		aud, err := d.searchAudio(ctx, q, span, 0, opts)
		if err != nil {
			return nil, err
		}
		ui, err := d.searchUI(ctx, q, span, 0, opts)
		if err != nil {
			return nil, err
		}
		merged := make([]SearchResult, 0, len(ocr)+len(aud)+len(ui))
		merged = append(merged, ocr...)
		merged = append(merged, aud...)
		merged = append(merged, ui...)
		sort.SliceStable(merged, func(i, j int) bool {
			ti, tj := merged[i].ResultTime(), merged[j].ResultTime()
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
			return merged[i].resultID() > merged[j].resultID()
		})
		if offset >= len(merged) {
			return nil, nil
		}
		merged = merged[offset:]
		if limit < len(merged) {
			merged = merged[:limit]
		}
		return merged, nil
	default:
		return nil, fmt.Errorf("%w: unknown content type %q", ErrStore, kind)
	}
}

// CountSearch returns the total the same filters would produce with
// no limit or offset.
func (d *Database) CountSearch(ctx context.Context, q string, kind ContentType, opts SearchOptions) (int, error) {
	switch kind {
	case ContentTypeOCR:
		return d.countOne(ctx, ocrQuery(q, opts, true))
	case ContentTypeAudio:
		if audioFilteredOut(opts) {
			return 0, nil
		}
		return d.countOne(ctx, audioQuery(q, opts, true))
	case ContentTypeUI:
		if uiFilteredOut(opts) {
			return 0, nil
		}
		return d.countOne(ctx, uiQuery(q, opts, true))
	case ContentTypeAll:
		total := 0
		for _, k := range []ContentType{ContentTypeOCR, ContentTypeAudio, ContentTypeUI} {
			n, err := d.CountSearch(ctx, q, k, opts)
			if err != nil {
				return 0, err
			}
			total += n
		}
		return total, nil
	default:
		return 0, fmt.Errorf("%w: unknown content type %q", ErrStore, kind)
	}
}

type builtQuery struct {
	sql  string
	args []interface{}
}

func (d *Database) countOne(ctx context.Context, bq builtQuery) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, bq.sql, bq.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return n, nil
}

func ocrQuery(q string, opts SearchOptions, count bool) builtQuery {
	cs := &condSet{}
	if strings.TrimSpace(q) != "" {
		cs.add(`frames.id IN (SELECT rowid FROM ocr_text_fts WHERE ocr_text_fts MATCH ?)`,
			ftsMatchExpr(q, "text"))
	}
	if !opts.StartTime.IsZero() {
		cs.add(`frames.timestamp >= ?`, opts.StartTime.UTC())
	}
	if !opts.EndTime.IsZero() {
		cs.add(`frames.timestamp <= ?`, opts.EndTime.UTC())
	}
	if opts.AppName != "" {
		cs.add(`frames.app_name LIKE '%' || ? || '%'`, opts.AppName)
	}
	if opts.WindowName != "" {
		cs.add(`frames.window_name LIKE '%' || ? || '%'`, opts.WindowName)
	}
	if opts.FrameName != "" {
		cs.add(`frames.name LIKE '%' || ? || '%'`, opts.FrameName)
	}
	if opts.BrowserURL != "" {
		cs.add(`frames.browser_url LIKE '%' || ? || '%'`, opts.BrowserURL)
	}
	if opts.Focused != nil {
		cs.add(`frames.focused = ?`, *opts.Focused)
	}
	if opts.MinLength > 0 {
		cs.add(`LENGTH(ocr_text.text) >= ?`, opts.MinLength)
	}
	if opts.MaxLength > 0 {
		cs.add(`LENGTH(ocr_text.text) <= ?`, opts.MaxLength)
	}

	base := `FROM ocr_text
		JOIN frames ON ocr_text.frame_id = frames.id
		JOIN video_chunks ON frames.video_chunk_id = video_chunks.id` + cs.where()
	if count {
		return builtQuery{sql: `SELECT COUNT(*) ` + base, args: cs.args}
	}
	return builtQuery{
		sql: `SELECT frames.id, frames.name, frames.timestamp, video_chunks.file_path,
			frames.offset_index, ocr_text.text, ocr_text.text_json, frames.app_name,
			frames.window_name, frames.browser_url, frames.focused, ocr_text.ocr_engine ` +
			base + ` ORDER BY frames.timestamp DESC, frames.id DESC LIMIT ? OFFSET ?`,
		args: cs.args,
	}
}

// audioFilteredOut reports filters that can never match audio rows;
// app and window identity belong to the visual kinds.
func audioFilteredOut(opts SearchOptions) bool {
	return opts.AppName != "" || opts.WindowName != "" ||
		opts.FrameName != "" || opts.BrowserURL != "" || opts.Focused != nil
}

func audioQuery(q string, opts SearchOptions, count bool) builtQuery {
	cs := &condSet{}
	if strings.TrimSpace(q) != "" {
		cs.add(`audio_transcriptions.id IN
			(SELECT rowid FROM audio_transcriptions_fts WHERE audio_transcriptions_fts MATCH ?)`,
			ftsMatchExpr(q, "transcription"))
	}
	if !opts.StartTime.IsZero() {
		cs.add(`audio_transcriptions.timestamp >= ?`, opts.StartTime.UTC())
	}
	if !opts.EndTime.IsZero() {
		cs.add(`audio_transcriptions.timestamp <= ?`, opts.EndTime.UTC())
	}
	if opts.MinLength > 0 {
		cs.add(`LENGTH(audio_transcriptions.transcription) >= ?`, opts.MinLength)
	}
	if opts.MaxLength > 0 {
		cs.add(`LENGTH(audio_transcriptions.transcription) <= ?`, opts.MaxLength)
	}
	if len(opts.SpeakerIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.SpeakerIDs)), ",")
		args := make([]interface{}, len(opts.SpeakerIDs))
		for i, id := range opts.SpeakerIDs {
			args[i] = id
		}
		cs.add(`audio_transcriptions.speaker_id IN (`+placeholders+`)`, args...)
	}
	// hallucination speakers are invisible everywhere
	cs.add(`(audio_transcriptions.speaker_id IS NULL OR speakers.hallucination = 0)`)

	base := `FROM audio_transcriptions
		JOIN audio_chunks ON audio_transcriptions.audio_chunk_id = audio_chunks.id
		LEFT JOIN speakers ON audio_transcriptions.speaker_id = speakers.id` + cs.where()
	if count {
		return builtQuery{sql: `SELECT COUNT(*) ` + base, args: cs.args}
	}
	return builtQuery{
		sql: `SELECT audio_transcriptions.id, audio_transcriptions.audio_chunk_id,
			audio_transcriptions.timestamp, audio_chunks.file_path,
			audio_transcriptions.offset_index, audio_transcriptions.transcription,
			audio_transcriptions.transcription_engine, audio_transcriptions.device,
			audio_transcriptions.is_input_device, audio_transcriptions.speaker_id,
			audio_transcriptions.start_time, audio_transcriptions.end_time ` +
			base + ` ORDER BY audio_transcriptions.timestamp DESC, audio_transcriptions.id DESC LIMIT ? OFFSET ?`,
		args: cs.args,
	}
}

func uiQuery(q string, opts SearchOptions, count bool) builtQuery {
	cs := &condSet{}
	if strings.TrimSpace(q) != "" {
		cs.add(`ui_monitoring.id IN (SELECT rowid FROM ui_monitoring_fts WHERE ui_monitoring_fts MATCH ?)`,
			ftsMatchExpr(q, "text_output"))
	}
	if !opts.StartTime.IsZero() {
		cs.add(`ui_monitoring.timestamp >= ?`, opts.StartTime.UTC())
	}
	if !opts.EndTime.IsZero() {
		cs.add(`ui_monitoring.timestamp <= ?`, opts.EndTime.UTC())
	}
	if opts.AppName != "" {
		cs.add(`ui_monitoring.app LIKE '%' || ? || '%'`, opts.AppName)
	}
	if opts.WindowName != "" {
		cs.add(`ui_monitoring.window LIKE '%' || ? || '%'`, opts.WindowName)
	}
	if opts.MinLength > 0 {
		cs.add(`LENGTH(ui_monitoring.text_output) >= ?`, opts.MinLength)
	}
	if opts.MaxLength > 0 {
		cs.add(`LENGTH(ui_monitoring.text_output) <= ?`, opts.MaxLength)
	}

	base := `FROM ui_monitoring` + cs.where()
	if count {
		return builtQuery{sql: `SELECT COUNT(*) ` + base, args: cs.args}
	}
	return builtQuery{
		sql: `SELECT id, text_output, timestamp, app, window,
			COALESCE(initial_traversal_at, timestamp) ` +
			base + ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		args: cs.args,
	}
}

func (d *Database) searchOCR(ctx context.Context, q string, limit, offset int, opts SearchOptions) ([]SearchResult, error) {
	bq := ocrQuery(q, opts, false)
	rows, err := d.db.QueryContext(ctx, bq.sql, append(bq.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r OCRResult
		if err := rows.Scan(&r.FrameID, &r.FrameName, &r.Timestamp, &r.FilePath,
			&r.OffsetIndex, &r.OCRText, &r.TextJSON, &r.AppName,
			&r.WindowName, &r.BrowserURL, &r.Focused, &r.Engine); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (d *Database) searchAudio(ctx context.Context, q string, limit, offset int, opts SearchOptions) ([]SearchResult, error) {
	if audioFilteredOut(opts) {
		return nil, nil
	}
	bq := audioQuery(q, opts, false)
	rows, err := d.db.QueryContext(ctx, bq.sql, append(bq.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r AudioResult
		var isInput bool
		if err := rows.Scan(&r.ID, &r.ChunkID, &r.Timestamp, &r.FilePath,
			&r.OffsetIndex, &r.Transcription, &r.Engine, &r.Device.Name,
			&isInput, &r.SpeakerID, &r.StartOffset, &r.EndOffset); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		if isInput {
			r.Device.Kind = audio.KindInput
		} else {
			r.Device.Kind = audio.KindOutput
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// uiFilteredOut reports filters that can never match UI snapshots.
func uiFilteredOut(opts SearchOptions) bool {
	return opts.FrameName != "" || opts.BrowserURL != "" || opts.Focused != nil
}

func (d *Database) searchUI(ctx context.Context, q string, limit, offset int, opts SearchOptions) ([]SearchResult, error) {
	if uiFilteredOut(opts) {
		return nil, nil
	}
	bq := uiQuery(q, opts, false)
	rows, err := d.db.QueryContext(ctx, bq.sql, append(bq.args, limit, offset)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r UIResult
		if err := rows.Scan(&r.ID, &r.Text, &r.Timestamp, &r.App, &r.Window,
			&r.InitialTraversalAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStore, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
