package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMkBitAddr(t *testing.T) {
	assert := assert.New(t)
	a, bit := MkBitAddr(1, 0, 4096)
	assert.Equal(MkAddr(1, 0), a)
	assert.Equal(uint64(0), bit)

	a, bit = MkBitAddr(1, 13, 4096)
	assert.Equal(MkAddr(1, 1), a)
	assert.Equal(uint64(5), bit)

	a, bit = MkBitAddr(1, 4096*8+9, 4096)
	assert.Equal(MkAddr(2, 1), a, "second bitmap block")
	assert.Equal(uint64(1), bit)
}

func TestMkSlotAddr(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(MkAddr(3, 0), MkSlotAddr(3, 0, 512, 4096))
	assert.Equal(MkAddr(3, 7*512), MkSlotAddr(3, 7, 512, 4096))
	assert.Equal(MkAddr(4, 0), MkSlotAddr(3, 8, 512, 4096))
	assert.Equal(MkAddr(5, 256), MkSlotAddr(3, 17, 256, 2048))
}
