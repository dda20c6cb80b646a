package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/lokutor-ai/recall/pkg/audio"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var testDevice = audio.AudioDevice{Name: "test", Kind: audio.KindOutput}

func embedding(fill float32) []float32 {
	e := make([]float32, EmbeddingSize)
	for i := range e {
		e[i] = fill
	}
	return e
}

func insertTranscription(t *testing.T, db *Database, text string, speakerID *int64) int64 {
	t.Helper()
	ctx := context.Background()
	chunkID, err := db.InsertAudioChunk(ctx, "test_audio.mp4")
	if err != nil {
		t.Fatalf("insert audio chunk: %v", err)
	}
	if _, err := db.InsertAudioTranscription(ctx, chunkID, text, 0, "", testDevice, speakerID, nil, nil); err != nil {
		t.Fatalf("insert transcription: %v", err)
	}
	return chunkID
}

func TestInsertAndSearchOCR(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertVideoChunk(ctx, "test_video.mp4", "test_device"); err != nil {
		t.Fatalf("insert video chunk: %v", err)
	}
	frameID, err := db.InsertFrame(ctx, "test_device", time.Time{}, "", "test", "", "", false)
	if err != nil {
		t.Fatalf("insert frame: %v", err)
	}
	if err := db.InsertOCRText(ctx, frameID, "Hello, world!", "", "tesseract"); err != nil {
		t.Fatalf("insert ocr: %v", err)
	}

	results, err := db.Search(ctx, "Hello", ContentTypeOCR, 100, 0, SearchOptions{AppName: "test"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	ocr, ok := results[0].(OCRResult)
	if !ok {
		t.Fatalf("expected OCR result, got %T", results[0])
	}
	if ocr.OCRText != "Hello, world!" {
		t.Errorf("expected 'Hello, world!', got %q", ocr.OCRText)
	}
	if ocr.FilePath != "test_video.mp4" {
		t.Errorf("expected 'test_video.mp4', got %q", ocr.FilePath)
	}
}

func TestInsertAndSearchAudio(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	chunkID, err := db.InsertAudioChunk(ctx, "test_audio.mp4")
	if err != nil {
		t.Fatalf("insert audio chunk: %v", err)
	}
	if _, err := db.InsertAudioTranscription(ctx, chunkID, "Hello from audio", 0, "", testDevice, nil, nil, nil); err != nil {
		t.Fatalf("insert transcription: %v", err)
	}

	// app-name filters never match audio rows
	filtered, err := db.Search(ctx, "audio", ContentTypeAudio, 100, 0, SearchOptions{AppName: "test"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(filtered) != 0 {
		t.Fatalf("expected 0 results with app filter, got %d", len(filtered))
	}

	results, err := db.Search(ctx, "audio", ContentTypeAudio, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	aud, ok := results[0].(AudioResult)
	if !ok {
		t.Fatalf("expected Audio result, got %T", results[0])
	}
	if aud.Transcription != "Hello from audio" {
		t.Errorf("expected 'Hello from audio', got %q", aud.Transcription)
	}
	if aud.FilePath != "test_audio.mp4" {
		t.Errorf("expected 'test_audio.mp4', got %q", aud.FilePath)
	}
	if aud.Device != testDevice {
		t.Errorf("expected device %v, got %v", testDevice, aud.Device)
	}
}

func TestUpdateAndSearchAudio(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	chunkID := insertTranscription(t, db, "Original transcription", nil)

	affected, err := db.UpdateAudioTranscription(ctx, chunkID, "This is a test.")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if affected != 1 {
		t.Errorf("expected 1 row updated, got %d", affected)
	}

	old, err := db.Search(ctx, "Original", ContentTypeAudio, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("old text still searchable, got %d results", len(old))
	}

	results, err := db.Search(ctx, "test", ContentTypeAudio, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].(AudioResult).Transcription != "This is a test." {
		t.Errorf("expected updated text, got %q", results[0].(AudioResult).Transcription)
	}
}

func TestSearchAll(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertVideoChunk(ctx, "test_video.mp4", "test_device"); err != nil {
		t.Fatalf("insert video chunk: %v", err)
	}
	frameID, err := db.InsertFrame(ctx, "test_device", time.Time{}, "", "test", "", "", false)
	if err != nil {
		t.Fatalf("insert frame: %v", err)
	}
	if err := db.InsertOCRText(ctx, frameID, "Hello from OCR", "", ""); err != nil {
		t.Fatalf("insert ocr: %v", err)
	}
	insertTranscription(t, db, "Hello from audio", nil)
	if _, err := db.InsertUISnapshot(ctx, "Hello from UI", time.Time{}, "app", "win", time.Time{}); err != nil {
		t.Fatalf("insert ui: %v", err)
	}

	results, err := db.Search(ctx, "Hello", ContentTypeAll, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// timestamps must be monotonically non-increasing
	for i := 1; i < len(results); i++ {
		if results[i].ResultTime().After(results[i-1].ResultTime()) {
			t.Errorf("result %d is newer than result %d", i, i-1)
		}
	}

	var ocrCount, audioCount, uiCount int
	for _, r := range results {
		switch r.(type) {
		case OCRResult:
			ocrCount++
		case AudioResult:
			audioCount++
		case UIResult:
			uiCount++
		}
	}
	if ocrCount != 1 || audioCount != 1 || uiCount != 1 {
		t.Errorf("expected one result per kind, got ocr=%d audio=%d ui=%d",
			ocrCount, audioCount, uiCount)
	}
}

func TestSearchTextPrefixRestrictsToTextColumn(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertVideoChunk(ctx, "test_video.mp4", "test_device"); err != nil {
		t.Fatalf("insert video chunk: %v", err)
	}
	frameID, err := db.InsertFrame(ctx, "test_device", time.Time{}, "", "chrome", "", "", false)
	if err != nil {
		t.Fatalf("insert frame: %v", err)
	}
	if err := db.InsertOCRText(ctx, frameID, "some page content", "", ""); err != nil {
		t.Fatalf("insert ocr: %v", err)
	}

	// unprefixed queries also match the structural columns
	results, err := db.Search(ctx, "chrome", ContentTypeOCR, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected app-name hit for unprefixed query, got %d", len(results))
	}

	// text: queries only match the text column
	results, err = db.Search(ctx, "text:chrome", ContentTypeOCR, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no hits for text:chrome, got %d", len(results))
	}

	results, err = db.Search(ctx, "text:content", ContentTypeOCR, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected text column hit, got %d", len(results))
	}
}

func TestSearchWithTimeRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// first batch
	if _, err := db.InsertVideoChunk(ctx, "test_video.mp4", "test_device"); err != nil {
		t.Fatalf("insert video chunk: %v", err)
	}
	frameID, err := db.InsertFrame(ctx, "test_device", time.Time{}, "", "test", "", "", false)
	if err != nil {
		t.Fatalf("insert frame: %v", err)
	}
	if err := db.InsertOCRText(ctx, frameID, "Hello before", "", ""); err != nil {
		t.Fatalf("insert ocr: %v", err)
	}
	insertTranscription(t, db, "Hello audio before", nil)

	time.Sleep(10 * time.Millisecond)
	mid := time.Now().UTC()
	time.Sleep(10 * time.Millisecond)

	// second batch
	frameID2, err := db.InsertFrame(ctx, "test_device", time.Time{}, "", "test", "", "", false)
	if err != nil {
		t.Fatalf("insert frame: %v", err)
	}
	if err := db.InsertOCRText(ctx, frameID2, "Hello after", "", ""); err != nil {
		t.Fatalf("insert ocr: %v", err)
	}
	insertTranscription(t, db, "Hello audio after", nil)

	opts := SearchOptions{StartTime: mid, EndTime: time.Now().UTC().Add(time.Minute)}
	results, err := db.Search(ctx, "Hello", ContentTypeAll, 100, 0, opts)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results inside range, got %d", len(results))
	}

	count, err := db.CountSearch(ctx, "Hello", ContentTypeAll, opts)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}

	all, err := db.CountSearch(ctx, "Hello", ContentTypeAll, SearchOptions{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if all != 4 {
		t.Errorf("expected count 4 without range, got %d", all)
	}
}

func TestSearchPagination(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		insertTranscription(t, db, "paginated transcription", nil)
	}

	page, err := db.Search(ctx, "paginated", ContentTypeAudio, 2, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page))
	}
	first := page[0].(AudioResult).ID

	page2, err := db.Search(ctx, "paginated", ContentTypeAudio, 2, 2, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page2))
	}
	if page2[0].(AudioResult).ID >= first {
		t.Errorf("expected page 2 to be older, got id %d after %d",
			page2[0].(AudioResult).ID, first)
	}

	count, err := db.CountSearch(ctx, "paginated", ContentTypeAudio, SearchOptions{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Errorf("expected count 5, got %d", count)
	}
}

func TestSearchUI(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if _, err := db.InsertUISnapshot(ctx, "Settings window contents", time.Time{}, "System Settings", "General", time.Time{}); err != nil {
		t.Fatalf("insert ui: %v", err)
	}

	results, err := db.Search(ctx, "Settings", ContentTypeUI, 100, 0, SearchOptions{AppName: "System"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	ui := results[0].(UIResult)
	if ui.App != "System Settings" || ui.Window != "General" {
		t.Errorf("unexpected snapshot identity: %+v", ui)
	}
	if ui.InitialTraversalAt.IsZero() {
		t.Error("expected initial_traversal_at to default to the timestamp")
	}
}

func TestEmptyQueryMatchesEverything(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	insertTranscription(t, db, "anything at all", nil)
	results, err := db.Search(ctx, "", ContentTypeAudio, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected empty query to match all rows, got %d", len(results))
	}
}

func TestInsertAndGetSpeakerFromEmbedding(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	speaker, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if speaker.ID == 0 {
		t.Fatal("expected a speaker id")
	}

	found, err := db.GetSpeakerFromEmbedding(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("get from embedding: %v", err)
	}
	if found == nil || found.ID != speaker.ID {
		t.Errorf("expected speaker %d, got %+v", speaker.ID, found)
	}

	// far away embeddings match nothing
	far, err := db.GetSpeakerFromEmbedding(ctx, embedding(5))
	if err != nil {
		t.Fatalf("get from embedding: %v", err)
	}
	if far != nil {
		t.Errorf("expected no match, got speaker %d", far.ID)
	}
}

func TestInsertSpeakerRejectsWrongSize(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.InsertSpeaker(context.Background(), []float32{1, 2, 3}); err == nil {
		t.Error("expected error for short embedding")
	}
}

func TestUpdateSpeakerNameAndMetadata(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	speaker, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if err := db.UpdateSpeakerName(ctx, speaker.ID, "test name"); err != nil {
		t.Fatalf("update name: %v", err)
	}
	if err := db.UpdateSpeakerMetadata(ctx, speaker.ID, `{"note":"test metadata"}`); err != nil {
		t.Fatalf("update metadata: %v", err)
	}

	got, err := db.GetSpeakerByID(ctx, speaker.ID)
	if err != nil {
		t.Fatalf("get speaker: %v", err)
	}
	if got.Name != "test name" {
		t.Errorf("expected 'test name', got %q", got.Name)
	}
	if got.Metadata != `{"note":"test metadata"}` {
		t.Errorf("unexpected metadata %q", got.Metadata)
	}
}

func TestGetUnnamedSpeakers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// speaker n gets n+1 transcriptions
	for n := 0; n < 3; n++ {
		speaker, err := db.InsertSpeaker(ctx, embedding(float32(n)))
		if err != nil {
			t.Fatalf("insert speaker: %v", err)
		}
		for i := 0; i <= n; i++ {
			insertTranscription(t, db, "test transcription", &speaker.ID)
		}
	}
	named, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if err := db.UpdateSpeakerName(ctx, named.ID, "test name"); err != nil {
		t.Fatalf("update name: %v", err)
	}

	// an unnamed speaker with no transcriptions yet still lists
	silent, err := db.InsertSpeaker(ctx, embedding(0.7))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}

	unnamed, err := db.GetUnnamedSpeakers(ctx, 10, 0, nil)
	if err != nil {
		t.Fatalf("get unnamed: %v", err)
	}
	if len(unnamed) != 4 {
		t.Fatalf("expected 4 unnamed speakers, got %d", len(unnamed))
	}
	wantOrder := []int64{3, 2, 1, silent.ID}
	for i, want := range wantOrder {
		if unnamed[i].ID != want {
			t.Errorf("position %d: expected speaker %d, got %d", i, want, unnamed[i].ID)
		}
		if unnamed[i].Name != "" {
			t.Errorf("speaker %d should be unnamed", unnamed[i].ID)
		}
	}

	var meta map[string]json.RawMessage
	if err := json.Unmarshal([]byte(unnamed[0].Metadata), &meta); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	var samples []map[string]string
	if err := json.Unmarshal(meta["audio_samples"], &samples); err != nil {
		t.Fatalf("audio_samples missing or malformed: %v", err)
	}
	if len(samples) != 3 {
		t.Errorf("expected 3 audio samples, got %d", len(samples))
	}

	var silentMeta map[string]json.RawMessage
	if err := json.Unmarshal([]byte(unnamed[3].Metadata), &silentMeta); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	var silentSamples []map[string]string
	if err := json.Unmarshal(silentMeta["audio_samples"], &silentSamples); err != nil {
		t.Fatalf("audio_samples missing or malformed: %v", err)
	}
	if len(silentSamples) != 0 {
		t.Errorf("expected no audio samples, got %d", len(silentSamples))
	}
}

func TestGetUnnamedSpeakersWithSpeakerIDs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for n := 0; n < 3; n++ {
		speaker, err := db.InsertSpeaker(ctx, embedding(float32(n)))
		if err != nil {
			t.Fatalf("insert speaker: %v", err)
		}
		for i := 0; i <= n; i++ {
			insertTranscription(t, db, "test transcription", &speaker.ID)
		}
	}
	named, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if err := db.UpdateSpeakerName(ctx, named.ID, "test name"); err != nil {
		t.Fatalf("update name: %v", err)
	}

	unnamed, err := db.GetUnnamedSpeakers(ctx, 10, 0, []int64{named.ID, 1, 2, 3})
	if err != nil {
		t.Fatalf("get unnamed: %v", err)
	}
	if len(unnamed) != 3 {
		t.Fatalf("expected 3 unnamed speakers, got %d", len(unnamed))
	}
	if unnamed[0].ID != 3 || unnamed[1].ID != 2 || unnamed[2].ID != 1 {
		t.Errorf("unexpected order: %d, %d, %d", unnamed[0].ID, unnamed[1].ID, unnamed[2].ID)
	}
}

func TestMergeSpeakers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	speaker1, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if err := db.UpdateSpeakerName(ctx, speaker1.ID, "speaker 1"); err != nil {
		t.Fatalf("update name: %v", err)
	}
	speaker2, err := db.InsertSpeaker(ctx, embedding(0.2))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if err := db.UpdateSpeakerName(ctx, speaker2.ID, "speaker 2"); err != nil {
		t.Fatalf("update name: %v", err)
	}

	for _, s := range []Speaker{speaker1, speaker2} {
		for i := 0; i < 2; i++ {
			insertTranscription(t, db, "test transcription", &s.ID)
		}
	}

	if err := db.MergeSpeakers(ctx, speaker1.ID, speaker2.ID); err != nil {
		t.Fatalf("merge: %v", err)
	}

	speakers, err := db.SearchSpeakers(ctx, "")
	if err != nil {
		t.Fatalf("search speakers: %v", err)
	}
	if len(speakers) != 1 {
		t.Fatalf("expected 1 speaker after merge, got %d", len(speakers))
	}
	if speakers[0].ID != speaker1.ID || speakers[0].Name != "speaker 1" {
		t.Errorf("winner lost its identity: %+v", speakers[0])
	}

	winnerCount, err := db.CountSearch(ctx, "", ContentTypeAudio,
		SearchOptions{SpeakerIDs: []int64{speaker1.ID}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if winnerCount != 4 {
		t.Errorf("expected winner to own 4 transcriptions, got %d", winnerCount)
	}
	loserCount, err := db.CountSearch(ctx, "", ContentTypeAudio,
		SearchOptions{SpeakerIDs: []int64{speaker2.ID}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if loserCount != 0 {
		t.Errorf("expected loser to own 0 transcriptions, got %d", loserCount)
	}
}

func TestSearchSpeakers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	speaker, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if err := db.UpdateSpeakerName(ctx, speaker.ID, "test name"); err != nil {
		t.Fatalf("update name: %v", err)
	}

	speakers, err := db.SearchSpeakers(ctx, "test")
	if err != nil {
		t.Fatalf("search speakers: %v", err)
	}
	if len(speakers) != 1 || speakers[0].Name != "test name" {
		t.Errorf("unexpected result %+v", speakers)
	}

	none, err := db.SearchSpeakers(ctx, "zzz")
	if err != nil {
		t.Fatalf("search speakers: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no match, got %d", len(none))
	}
}

func TestDeleteSpeaker(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	speaker, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	insertTranscription(t, db, "test transcription", &speaker.ID)

	other, err := db.InsertSpeaker(ctx, embedding(0.9))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	insertTranscription(t, db, "unrelated transcription", &other.ID)

	if err := db.DeleteSpeaker(ctx, speaker.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	speakers, err := db.SearchSpeakers(ctx, "")
	if err != nil {
		t.Fatalf("search speakers: %v", err)
	}
	if len(speakers) != 0 {
		t.Errorf("expected no named speakers, got %d", len(speakers))
	}
	chunks, err := db.GetAudioChunksForSpeaker(ctx, speaker.ID)
	if err != nil {
		t.Fatalf("get chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected cascade delete, got %d chunks", len(chunks))
	}

	// deleting again is a no-op and leaves unrelated rows alone
	if err := db.DeleteSpeaker(ctx, speaker.ID); err != nil {
		t.Fatalf("second delete must not error: %v", err)
	}
	otherCount, err := db.CountSearch(ctx, "", ContentTypeAudio,
		SearchOptions{SpeakerIDs: []int64{other.ID}})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if otherCount != 1 {
		t.Errorf("unrelated speaker lost rows, has %d", otherCount)
	}
}

func TestMarkSpeakerAsHallucination(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	speaker, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	if err := db.UpdateSpeakerName(ctx, speaker.ID, "ghost"); err != nil {
		t.Fatalf("update name: %v", err)
	}
	insertTranscription(t, db, "haunted transcription", &speaker.ID)

	if err := db.MarkSpeakerAsHallucination(ctx, speaker.ID); err != nil {
		t.Fatalf("mark: %v", err)
	}

	speakers, err := db.SearchSpeakers(ctx, "")
	if err != nil {
		t.Fatalf("search speakers: %v", err)
	}
	if len(speakers) != 0 {
		t.Errorf("hallucination speaker still listed")
	}

	results, err := db.Search(ctx, "haunted", ContentTypeAudio, 100, 0, SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("hallucination speaker rows still searchable")
	}

	found, err := db.GetSpeakerFromEmbedding(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("get from embedding: %v", err)
	}
	if found != nil {
		t.Errorf("hallucination speaker matched by embedding")
	}
}

func TestGetSimilarSpeakers(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	subject, err := db.InsertSpeaker(ctx, embedding(0.1))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	insertTranscription(t, db, "subject speech", &subject.ID)

	near, err := db.InsertSpeaker(ctx, embedding(0.2))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	insertTranscription(t, db, "near speech", &near.ID)

	farther, err := db.InsertSpeaker(ctx, embedding(0.4))
	if err != nil {
		t.Fatalf("insert speaker: %v", err)
	}
	insertTranscription(t, db, "farther speech", &farther.ID)

	// a speaker with no audio rows never appears
	if _, err := db.InsertSpeaker(ctx, embedding(0.15)); err != nil {
		t.Fatalf("insert speaker: %v", err)
	}

	similar, err := db.GetSimilarSpeakers(ctx, subject.ID, 10)
	if err != nil {
		t.Fatalf("get similar: %v", err)
	}
	if len(similar) != 2 {
		t.Fatalf("expected 2 similar speakers, got %d", len(similar))
	}
	if similar[0].ID != near.ID {
		t.Errorf("expected nearest first, got %d", similar[0].ID)
	}
	for _, s := range similar {
		if s.ID == subject.ID {
			t.Error("subject listed among its own peers")
		}
	}
}
