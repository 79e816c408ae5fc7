package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageBytes_DecodeArray(t *testing.T) {
	var req MovieUploadRequest
	err := json.Unmarshal([]byte(`{"title":"T","author":"A","image":[137, 80,78,71,0,255]}`), &req)
	require.NoError(t, err)

	assert.Equal(t, ImageBytes{137, 80, 78, 71, 0, 255}, req.Image)
}

func TestImageBytes_DecodeBase64(t *testing.T) {
	var img ImageBytes
	require.NoError(t, json.Unmarshal([]byte(`"iVBORw=="`), &img))

	assert.Equal(t, ImageBytes{0x89, 'P', 'N', 'G'}, img)
}

func TestImageBytes_DecodeEmpty(t *testing.T) {
	var img ImageBytes
	require.NoError(t, json.Unmarshal([]byte(`[]`), &img))
	assert.Empty(t, img)

	require.NoError(t, json.Unmarshal([]byte(`null`), &img))
	assert.Nil(t, img)
}

func TestImageBytes_DecodeRejectsOutOfRange(t *testing.T) {
	cases := []string{`[256]`, `[-1]`, `[1,]`, `[1.5]`, `{"a":1}`}
	for _, tc := range cases {
		var img ImageBytes
		assert.Error(t, json.Unmarshal([]byte(tc), &img), tc)
	}
}

func TestImageBytes_EncodeArray(t *testing.T) {
	out, err := json.Marshal(ImageBytes{1, 2, 255})
	require.NoError(t, err)
	assert.Equal(t, `[1,2,255]`, string(out))

	out, err = json.Marshal(ImageBytes{})
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(out))
}
