package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErr(t *testing.T) {
	err := NotFound.Printf("timer %d", 7)
	assert.Equal(t, "NOT_FOUND,timer 7", err.Error())
	assert.True(t, errors.Is(err, NotFound))
	assert.False(t, errors.Is(err, Closed))
	assert.Equal(t, int32(ErrCode_NotFound), err.Code())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, int32(ErrCode_OK), CodeOf(nil))
	assert.Equal(t, int32(ErrCode_Busy), CodeOf(fmt.Errorf("push: %w", Busy)))
	assert.Equal(t, int32(ErrCode_Unknown), CodeOf(errors.New("boom")))
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil))
	assert.Same(t, Corrupt, WrapError(Corrupt))
	w := WrapError(errors.New("disk"))
	assert.Equal(t, "disk", w.Error())
	assert.True(t, errors.Is(w, Unknown))
}

func TestPrint(t *testing.T) {
	assert.Same(t, Codec, Codec.Print())
	assert.Equal(t, "CODEC,field,5", Codec.Print("field", "5").Error())
}
