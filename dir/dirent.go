package dir

import (
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/rufs/common"
	"github.com/mit-pdos/rufs/util"
)

// Dirent is one fixed-size directory slot. The name is stored with its
// length, so names are compared by length and content.
type Dirent struct {
	Inum  common.Inum
	Valid bool
	Name  string
}

func (de Dirent) String() string {
	return fmt.Sprintf("%q -> %d (valid %v)", de.Name, de.Inum, de.Valid)
}

func (de Dirent) Encode() []byte {
	enc := marshal.NewEnc(common.DIRENTSZ)
	enc.PutInt(uint64(de.Inum))
	if de.Valid {
		enc.PutInt(1)
	} else {
		enc.PutInt(0)
	}
	enc.PutInt(uint64(len(de.Name)))
	data := enc.Finish()
	copy(data[common.DIRENTHDR:], de.Name)
	return data
}

func decodeDirent(data []byte) Dirent {
	dec := marshal.NewDec(util.CloneByteSlice(data[:common.DIRENTHDR]))
	inum := dec.GetInt()
	valid := dec.GetInt() != 0
	n := util.Min(dec.GetInt(), common.MAXNAMELEN)
	name := string(data[common.DIRENTHDR : common.DIRENTHDR+n])
	return Dirent{Inum: common.Inum(inum), Valid: valid, Name: name}
}

// ValidName checks that name can be stored as a single path component
func ValidName(name string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("name %q: %w", name, common.ErrInvalid)
	}
	if uint64(len(name)) > common.MAXNAMELEN {
		return fmt.Errorf("name of %d bytes: %w", len(name), common.ErrNameTooLong)
	}
	return nil
}
