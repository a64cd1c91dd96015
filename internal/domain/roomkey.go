package domain

import "strconv"

type RoomKeyKind int

const (
	KeyNone RoomKeyKind = iota
	KeyByID
	KeyByCode
)

// RoomKey identifies a room either by its numeric server id or by the
// human-shareable code. Exactly one variant is set.
type RoomKey struct {
	kind RoomKeyKind
	id   int64
	code string
}

func ByID(id int64) RoomKey { return RoomKey{kind: KeyByID, id: id} }

func ByCode(code string) RoomKey { return RoomKey{kind: KeyByCode, code: code} }

func (k RoomKey) Kind() RoomKeyKind { return k.kind }

func (k RoomKey) IsZero() bool { return k.kind == KeyNone }

func (k RoomKey) ID() (int64, bool) {
	if k.kind != KeyByID {
		return 0, false
	}
	return k.id, true
}

func (k RoomKey) Code() (string, bool) {
	if k.kind != KeyByCode {
		return "", false
	}
	return k.code, true
}

// Upgrade returns the ById form once the server has told us the numeric id.
// Keys already located by id are returned unchanged.
func (k RoomKey) Upgrade(id int64) RoomKey {
	if k.kind == KeyByID || id <= 0 {
		return k
	}
	return ByID(id)
}

func (k RoomKey) String() string {
	switch k.kind {
	case KeyByID:
		return "id:" + strconv.FormatInt(k.id, 10)
	case KeyByCode:
		return "code:" + k.code
	default:
		return "none"
	}
}
