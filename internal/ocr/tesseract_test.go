package ocr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTesseract_Defaults(t *testing.T) {
	tess := NewTesseract(TesseractConfig{AllowHyphen: true})
	assert.Equal(t, "eng", tess.language)
	assert.Equal(t, PlateAlphabet+"-", tess.whitelist)

	tess = NewTesseract(TesseractConfig{Language: "eng+hin"})
	assert.Equal(t, "eng+hin", tess.language)
	assert.Equal(t, PlateAlphabet, tess.whitelist)
}

func TestTesseract_AbandonedCallHoldsSlot(t *testing.T) {
	tess := NewTesseract(TesseractConfig{MaxConcurrent: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	calls := 0
	tess.run = func([]byte) (string, error) {
		calls++
		if calls == 1 {
			close(started)
			<-release
		}
		return "MH12AB1234", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := tess.Recognize(ctx, nil)
		firstDone <- err
	}()
	<-started
	cancel()
	assert.ErrorIs(t, <-firstDone, context.Canceled)

	// the engine is still busy with the abandoned image
	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	_, err := tess.Recognize(short, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	text, err := tess.Recognize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "MH12AB1234", text)
}
