package speech

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		frame Frame
	}{
		{
			name: "client request",
			frame: Frame{
				Type:          FullClientRequest,
				Flags:         NoSequenceNumber,
				Serialization: JSONSerialization,
				Compression:   GzipCompression,
				Payload:       []byte(`{"a":1}`),
			},
		},
		{
			name: "last audio packet",
			frame: Frame{
				Type:        AudioOnlyRequest,
				Flags:       NegativeSequenceNumber,
				Compression: NoCompression,
				Sequence:    -7,
				Payload:     []byte{1, 2, 3},
			},
		},
		{
			name: "session event",
			frame: Frame{
				Type:          FullServerResponse,
				Flags:         WithEvent,
				Serialization: JSONSerialization,
				Event:         EventSessionFinished,
				SessionID:     "sess-1",
				Payload:       []byte(`{}`),
			},
		},
		{
			name: "connection event",
			frame: Frame{
				Type:      FullServerResponse,
				Flags:     WithEvent,
				Event:     EventConnectionStarted,
				ConnectID: "conn-1",
			},
		},
		{
			name: "error",
			frame: Frame{
				Type:      ErrorMessage,
				ErrorCode: 45000001,
				Payload:   []byte("bad request"),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decoded, err := UnmarshalFrame(tc.frame.Marshal())
			require.NoError(t, err)
			require.Equal(t, tc.frame, *decoded)
		})
	}
}

func TestUnmarshalFrameTruncated(t *testing.T) {
	full := (&Frame{Type: FullServerResponse, Payload: []byte("hello")}).Marshal()

	for _, n := range []int{0, 3, 6, len(full) - 1} {
		_, err := UnmarshalFrame(full[:n])
		require.ErrorIs(t, err, errShortFrame, "length %d", n)
	}
}

func TestAudioRequestSequence(t *testing.T) {
	mid := newAudioRequest([]byte{1}, 3, false, NoCompression)
	require.Equal(t, int32(3), mid.Sequence)
	require.False(t, mid.IsLast())

	last := newAudioRequest([]byte{1}, 4, true, NoCompression)
	require.Equal(t, int32(-4), last.Sequence)
	require.True(t, last.IsLast())
}

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, the quick brown fox")

	compressed, err := compress(data, GzipCompression)
	require.NoError(t, err)
	require.NotEqual(t, data, compressed)

	out, err := decompress(compressed, GzipCompression)
	require.NoError(t, err)
	require.Equal(t, data, out)

	plain, err := compress(data, NoCompression)
	require.NoError(t, err)
	require.Equal(t, data, plain)

	_, err = compress(data, Compression(7))
	require.Error(t, err)
}

func TestAudioFormat(t *testing.T) {
	require.Equal(t, "mp3", audioFormat(""))
	require.Equal(t, "mp3", audioFormat("WAV"))
	require.Equal(t, "ogg_opus", audioFormat(" ogg_opus "))
	require.Equal(t, "pcm", audioFormat("pcm"))
}

func TestResolveTTSResource(t *testing.T) {
	tests := []struct {
		voice string
		want  string
	}{
		{voice: "", want: ttsDefaultResource},
		{voice: "S_clone_speaker", want: ttsMegaResource},
		{voice: "en_female_amanda_mars_bigtts", want: ttsSeedResource},
		{voice: "en_male_adam", want: ttsDefaultResource},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, resolveTTSResource(tt.voice), tt.voice)
	}
}
