package dir

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/rufs-project/rufs/common"
)

// Dirent binds a name to an inode inside a directory block.
type Dirent struct {
	Valid bool
	Inum  common.Inum
	Name  string
}

func (de Dirent) Encode() []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	var valid uint64
	if de.Valid {
		valid = 1
	}
	enc.PutInt(valid)
	enc.PutInt(uint64(de.Inum))
	data := enc.Finish()
	copy(data[common.DIRENTHDR:], de.Name)
	return data
}

func DecodeDirent(data []byte) Dirent {
	dec := marshal.NewDec(data[:common.DIRENTHDR])
	de := Dirent{}
	de.Valid = dec.GetInt() != 0
	de.Inum = common.Inum(dec.GetInt())
	name := data[common.DIRENTHDR:common.DIRENTSZ]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	de.Name = string(name)
	return de
}

// ValidName checks that name can be stored in a directory entry.
func ValidName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%w: bad name %q", common.ErrInvalid, name)
	}
	if uint64(len(name)) > common.MAXNAMELEN {
		return fmt.Errorf("%w: %d bytes", common.ErrNameTooLong, len(name))
	}
	return nil
}
