package speech

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/fluent-tutor/backend/internal/model/speech"
	"github.com/zhouzirui/fluent-tutor/backend/internal/service/tutor"
)

type fakeSynthesizer struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	f.mu.Lock()
	f.texts = append(f.texts, req.Text)
	f.mu.Unlock()
	if err := f.fail[req.Text]; err != nil {
		return nil, err
	}
	return &speech.TTSResponse{AudioData: []byte("audio:" + req.Text), Format: "mp3"}, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, req *speech.ASRRequest) (*speech.ASRResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &speech.ASRResponse{SessionID: req.SessionID, Text: f.text}, nil
}

type countingRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *countingRecorder) SpeechFailed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func TestServiceDisabled(t *testing.T) {
	svc := NewService(nil)
	require.False(t, svc.Enabled())

	_, err := svc.Synthesize(context.Background(), &speech.TTSRequest{Text: "hi"})
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Transcribe(context.Background(), &speech.ASRRequest{Audio: []byte{1}})
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.Pronounce(context.Background(), speech.PronounceRequest{Term: "Ephemeral"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestServicePronounce(t *testing.T) {
	tts := &fakeSynthesizer{}
	svc := NewService(nil, WithClients(tts, &fakeTranscriber{}))

	got, err := svc.Pronounce(context.Background(), speech.PronounceRequest{
		Term:    " Ephemeral ",
		Example: "The beauty of the sunset was ephemeral.",
	})
	require.NoError(t, err)

	require.Equal(t, "Ephemeral", got.Term)
	require.Equal(t, "Ephemeral", got.Word.Text)
	require.Equal(t, "The beauty of the sunset was ephemeral.", got.Example.Text)
	require.Equal(t, "mp3", got.Word.Format)
	require.NotEmpty(t, got.Word.Audio)
	require.ElementsMatch(t, []string{"Ephemeral", "The beauty of the sunset was ephemeral."}, tts.texts)
}

func TestServicePronounceWithoutExample(t *testing.T) {
	tts := &fakeSynthesizer{}
	svc := NewService(nil, WithClients(tts, &fakeTranscriber{}))

	got, err := svc.Pronounce(context.Background(), speech.PronounceRequest{Term: "Ubiquitous"})
	require.NoError(t, err)
	require.Nil(t, got.Example)
	require.Equal(t, []string{"Ubiquitous"}, tts.texts)

	_, err = svc.Pronounce(context.Background(), speech.PronounceRequest{Term: "  "})
	require.ErrorIs(t, err, ErrEmptyText)
}

func TestServicePronounceFailure(t *testing.T) {
	boom := errors.New("boom")
	tts := &fakeSynthesizer{fail: map[string]error{"Serendipity": boom}}
	recorder := &countingRecorder{}
	svc := NewService(nil, WithClients(tts, &fakeTranscriber{}), WithRecorder(recorder))

	_, err := svc.Pronounce(context.Background(), speech.PronounceRequest{Term: "Serendipity", Example: "Pure serendipity."})
	require.ErrorIs(t, err, boom)
	require.Contains(t, recorder.ops, "synthesize")
}

func TestServiceTranscribe(t *testing.T) {
	recorder := &countingRecorder{}
	svc := NewService(nil, WithClients(&fakeSynthesizer{}, &fakeTranscriber{text: "hello"}), WithRecorder(recorder))

	resp, err := svc.Transcribe(context.Background(), &speech.ASRRequest{SessionID: "s1", Audio: []byte{1}})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)

	_, err = svc.Transcribe(context.Background(), &speech.ASRRequest{})
	require.ErrorIs(t, err, ErrNoAudio)

	svc = NewService(nil, WithClients(&fakeSynthesizer{}, &fakeTranscriber{err: ErrNotUnderstood}), WithRecorder(recorder))
	_, err = svc.Transcribe(context.Background(), &speech.ASRRequest{Audio: []byte{1}})
	require.ErrorIs(t, err, ErrNotUnderstood)
	require.Empty(t, recorder.ops, "an unintelligible recording is not a service failure")

	svc = NewService(nil, WithClients(&fakeSynthesizer{}, &fakeTranscriber{err: &UpstreamError{Op: "asr", Code: 1}}), WithRecorder(recorder))
	_, err = svc.Transcribe(context.Background(), &speech.ASRRequest{Audio: []byte{1}})
	require.Error(t, err)
	require.Equal(t, []string{"transcribe"}, recorder.ops)
}

func TestErrorKinds(t *testing.T) {
	for _, err := range []error{ErrNoAudio, ErrNotUnderstood, ErrNotConfigured, &UpstreamError{Op: "asr"}} {
		de := CaptureError(err)
		require.Equal(t, tutor.KindCaptureUnavailable, de.Kind)
		require.ErrorIs(t, de, err)
	}

	de := SynthesisError(ErrNoAudio)
	require.Equal(t, tutor.KindSynthesisFailed, de.Kind)
	require.Equal(t, tutor.KindSynthesisFailed, tutor.KindOf(de))
}
