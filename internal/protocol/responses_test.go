package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyKnownKinds(t *testing.T) {
	for _, kind := range []string{
		KindRegister, KindStartRequest, KindFinishRequest, KindTagRequest,
		KindStartSpan, KindStopSpan, KindTagSpan, KindApplicationEvent,
	} {
		t.Run(kind, func(t *testing.T) {
			resp, err := Classify([]byte(`{"` + kind + `":{"result":"Success"}}`))
			require.NoError(t, err)
			assert.Equal(t, kind, resp.Kind())
			assert.True(t, resp.Outcome().Success)
			assert.NoError(t, resp.Outcome().Err())
		})
	}
}

func TestClassifyVersion(t *testing.T) {
	resp, err := Classify([]byte(`{"CoreAgentVersion":{"version":"1.4.0","result":"Success"}}`))
	require.NoError(t, err)
	v, ok := resp.(*VersionResponse)
	require.True(t, ok)
	assert.Equal(t, "1.4.0", v.Version)
}

func TestClassifyFailureResult(t *testing.T) {
	resp, err := Classify([]byte(`{"TagSpan":{"result":{"Failure":{"message":"unknown span"}}}}`))
	require.NoError(t, err)

	out := resp.Outcome()
	assert.False(t, out.Success)
	assert.Equal(t, "unknown span", out.Message)
	assert.ErrorIs(t, out.Err(), ErrAgentFailure)
}

func TestClassifyTopLevelFailure(t *testing.T) {
	resp, err := Classify([]byte(`{"Failure":{"message":"bad request"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindFailure, resp.Kind())
	assert.Equal(t, "bad request", resp.Outcome().Message)

	resp, err = Classify([]byte(`{"Failure":"plain"}`))
	require.NoError(t, err)
	assert.Equal(t, "plain", resp.Outcome().Message)
}

func TestClassifyFirstTableKeyWins(t *testing.T) {
	resp, err := Classify([]byte(`{"StopSpan":{"result":"Success"},"Register":{"result":"Success"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindRegister, resp.Kind())
}

func TestClassifyUnrecognized(t *testing.T) {
	_, err := Classify([]byte(`{"Heartbeat":{}}`))
	require.ErrorIs(t, err, ErrUnrecognizedResponse)
	assert.NotErrorIs(t, err, ErrMalformedResponse)
	assert.Contains(t, err.Error(), "Heartbeat")

	_, err = Classify([]byte(`{}`))
	require.ErrorIs(t, err, ErrUnrecognizedResponse)
}

func TestClassifyMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `{"Register"`,
		"not an object": `[1,2,3]`,
		"bad result":    `{"Register":{"result":42}}`,
		"empty result":  `{"Register":{"result":{}}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Classify([]byte(payload))
			require.ErrorIs(t, err, ErrMalformedResponse)
			assert.NotErrorIs(t, err, ErrUnrecognizedResponse)
		})
	}
}

func TestResultMarshalShapes(t *testing.T) {
	b, err := Success().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"Success"`, string(b))

	b, err = Failure("nope").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"Failure":{"message":"nope"}}`, string(b))
}

func TestResultNonSuccessString(t *testing.T) {
	var r Result
	require.NoError(t, r.UnmarshalJSON([]byte(`"Overloaded"`)))
	assert.False(t, r.Success)
	assert.Equal(t, "Overloaded", r.Message)
}
