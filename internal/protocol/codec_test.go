package protocol

import (
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawFrame(payload string) []byte {
	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out
}

func TestEncodeFrameLayout(t *testing.T) {
	parent := "span-1"
	frame, err := Encode(&StartSpan{
		RequestID: "req-1",
		SpanID:    "span-2",
		ParentID:  &parent,
		Operation: "SQL/Query",
		Timestamp: "2024-01-02T03:04:05.000006Z",
	})
	require.NoError(t, err)

	size := binary.BigEndian.Uint32(frame[:HeaderSize])
	require.Equal(t, len(frame)-HeaderSize, int(size))

	var top map[string]map[string]any
	require.NoError(t, json.Unmarshal(frame[HeaderSize:], &top))
	require.Len(t, top, 1)
	body := top[KindStartSpan]
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, "span-2", body["span_id"])
	assert.Equal(t, "span-1", body["parent_id"])
	assert.Equal(t, "SQL/Query", body["operation"])
}

func TestEncodeOmitsNilParent(t *testing.T) {
	frame, err := Encode(&StartSpan{RequestID: "req-1", SpanID: "span-1", Operation: "Controller/x"})
	require.NoError(t, err)
	assert.NotContains(t, string(frame[HeaderSize:]), "parent_id")
}

func TestEncodeRegister(t *testing.T) {
	frame, err := Encode(NewRegister("shop", "secret"))
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"Register":{"app":"shop","key":"secret","language":"go","api_version":"1.0"}}`,
		string(frame[HeaderSize:]))
}

func TestEncodeCoreAgentVersion(t *testing.T) {
	frame, err := Encode(CoreAgentVersion{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"CoreAgentVersion":{}}`, string(frame[HeaderSize:]))
}

func TestDecodeSingleFrame(t *testing.T) {
	frames, rest, err := Decode(rawFrame(`{"StartRequest":{"result":"Success"}}`))
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, frames, 1)
	require.NoError(t, frames[0].Err)
	assert.Equal(t, KindStartRequest, frames[0].Response.Kind())
	assert.True(t, frames[0].Response.Outcome().Success)
}

func TestDecodeMultipleFramesInOrder(t *testing.T) {
	var buf []byte
	buf = append(buf, rawFrame(`{"Register":{"result":"Success"}}`)...)
	buf = append(buf, rawFrame(`{"StartSpan":{"result":"Success"}}`)...)
	buf = append(buf, rawFrame(`{"StopSpan":{"result":"Success"}}`)...)

	frames, rest, err := Decode(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, frames, 3)
	assert.Equal(t, KindRegister, frames[0].Response.Kind())
	assert.Equal(t, KindStartSpan, frames[1].Response.Kind())
	assert.Equal(t, KindStopSpan, frames[2].Response.Kind())
}

func TestDecodeShortBufferYieldsNothing(t *testing.T) {
	for n := 0; n <= HeaderSize; n++ {
		buf := make([]byte, n)
		frames, rest, err := Decode(buf)
		require.NoError(t, err)
		assert.Empty(t, frames)
		assert.Len(t, rest, n)
	}
}

func TestDecodePartialFrameLeftPending(t *testing.T) {
	full := rawFrame(`{"TagSpan":{"result":"Success"}}`)
	partial := full[:len(full)-3]

	frames, rest, err := Decode(partial)
	require.NoError(t, err)
	assert.Empty(t, frames)
	assert.Equal(t, partial, rest)
}

func TestDecodeCompleteThenPartial(t *testing.T) {
	first := rawFrame(`{"Register":{"result":"Success"}}`)
	second := rawFrame(`{"FinishRequest":{"result":"Success"}}`)
	buf := append(append([]byte{}, first...), second[:7]...)

	frames, rest, err := Decode(buf)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, second[:7], rest)
}

func TestDecodeOversizeLength(t *testing.T) {
	buf := []byte{0xff, 0xff, 0xff, 0xff, '{'}
	_, rest, err := Decode(buf)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.Nil(t, rest)
}

func TestDecodeBadPayloadIsPerFrame(t *testing.T) {
	var buf []byte
	buf = append(buf, rawFrame(`not json`)...)
	buf = append(buf, rawFrame(`{"Nope":{}}`)...)
	buf = append(buf, rawFrame(`{"StopSpan":{"result":"Success"}}`)...)

	frames, rest, err := Decode(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, frames, 3)
	assert.ErrorIs(t, frames[0].Err, ErrMalformedResponse)
	assert.ErrorIs(t, frames[1].Err, ErrUnrecognizedResponse)
	assert.NoError(t, frames[2].Err)
}

func TestDecoderFeedAcrossChunks(t *testing.T) {
	var stream []byte
	stream = append(stream, rawFrame(`{"Register":{"result":"Success"}}`)...)
	stream = append(stream, rawFrame(`{"CoreAgentVersion":{"version":"1.4.0","result":"Success"}}`)...)

	var (
		dec   Decoder
		kinds []string
	)
	for i := 0; i < len(stream); i += 3 {
		end := min(i+3, len(stream))
		frames, err := dec.Feed(stream[i:end])
		require.NoError(t, err)
		for _, f := range frames {
			require.NoError(t, f.Err)
			kinds = append(kinds, f.Response.Kind())
		}
	}

	assert.Equal(t, []string{KindRegister, KindCoreAgentVersion}, kinds)
	assert.Zero(t, dec.Pending())
}

func TestDecoderFeedDoesNotAliasChunk(t *testing.T) {
	frame := rawFrame(`{"Register":{"result":"Success"}}`)
	chunk := append([]byte{}, frame[:6]...)

	var dec Decoder
	frames, err := dec.Feed(chunk)
	require.NoError(t, err)
	require.Empty(t, frames)

	for i := range chunk {
		chunk[i] = 0
	}
	frames, err = dec.Feed(frame[6:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, KindRegister, frames[0].Response.Kind())
}

func TestDecoderResetAfterOversize(t *testing.T) {
	var dec Decoder
	_, err := dec.Feed([]byte{0x7f, 0, 0, 0, 0})
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, dec.Pending())
}

func TestEncodeDecodeThroughResponse(t *testing.T) {
	frame, err := EncodeResponse(&VersionResponse{Version: "1.4.0", Result: Success()})
	require.NoError(t, err)

	frames, _, err := Decode(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	v, ok := frames[0].Response.(*VersionResponse)
	require.True(t, ok)
	assert.Equal(t, "1.4.0", v.Version)
}
