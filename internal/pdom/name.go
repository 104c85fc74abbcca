package pdom

import (
	"cmp"
	"slices"

	"github.com/jward/pdom/internal/database"
	"github.com/jward/pdom/internal/sema"
)

// Name record: one occurrence of a binding in a file. Names of a binding
// form a doubly linked list per role; names of a file form a singly linked
// list headed by the file.
const (
	offNameFile       = 0
	offNameBinding    = offNameFile + database.PtrSize
	offNamePrev       = offNameBinding + database.PtrSize
	offNameNext       = offNamePrev + database.PtrSize
	offNameNextInFile = offNameNext + database.PtrSize
	offNameLine       = offNameNextInFile + database.PtrSize
	offNameCol        = offNameLine + 4
	offNameRole       = offNameCol + 4
	nameRecordSize    = offNameRole + 1
)

// Occurrence is a recorded name of a binding.
type Occurrence struct {
	File string    `json:"file"`
	Line int       `json:"line"`
	Col  int       `json:"col"`
	Role sema.Role `json:"role"`
}

// addName records the occurrence n of pb.
func (p *PDOM) addName(pb Binding, n sema.Name) error {
	f, err := p.addFile(n.Loc.File)
	if err != nil {
		return err
	}
	db := p.db
	rec, err := db.Malloc(nameRecordSize)
	if err != nil {
		return err
	}
	if err := db.Clear(rec, nameRecordSize); err != nil {
		return err
	}
	if err := db.PutRecPtr(rec+offNameFile, f.record); err != nil {
		return err
	}
	if err := db.PutRecPtr(rec+offNameBinding, pb.Record()); err != nil {
		return err
	}
	if err := db.PutInt(rec+offNameLine, int32(n.Loc.Line)); err != nil {
		return err
	}
	if err := db.PutInt(rec+offNameCol, int32(n.Loc.Col)); err != nil {
		return err
	}
	if err := db.PutByte(rec+offNameRole, byte(n.Role)); err != nil {
		return err
	}

	head := pb.Record() + firstNameOffset(n.Role)
	first, err := db.GetRecPtr(head)
	if err != nil {
		return err
	}
	if first != 0 {
		if err := db.PutRecPtr(first+offNamePrev, rec); err != nil {
			return err
		}
	}
	if err := db.PutRecPtr(rec+offNameNext, first); err != nil {
		return err
	}
	if err := db.PutRecPtr(head, rec); err != nil {
		return err
	}

	fileFirst, err := f.firstName()
	if err != nil {
		return err
	}
	if err := db.PutRecPtr(rec+offNameNextInFile, fileFirst); err != nil {
		return err
	}
	return db.PutRecPtr(f.record+offFileFirstName, rec)
}

// clearNames unlinks and frees every name recorded for f.
func (p *PDOM) clearNames(f *File) error {
	db := p.db
	rec, err := f.firstName()
	if err != nil {
		return err
	}
	for i := 0; rec != 0; i++ {
		if i > maxListLength {
			return corrupt("clear names", f.record)
		}
		next, err := db.GetRecPtr(rec + offNameNextInFile)
		if err != nil {
			return err
		}
		if err := unlinkName(db, rec); err != nil {
			return err
		}
		if err := db.Free(rec); err != nil {
			return err
		}
		rec = next
	}
	return db.PutRecPtr(f.record+offFileFirstName, 0)
}

func unlinkName(db *database.Database, rec database.Ptr) error {
	prev, err := db.GetRecPtr(rec + offNamePrev)
	if err != nil {
		return err
	}
	next, err := db.GetRecPtr(rec + offNameNext)
	if err != nil {
		return err
	}
	if next != 0 {
		if err := db.PutRecPtr(next+offNamePrev, prev); err != nil {
			return err
		}
	}
	if prev != 0 {
		return db.PutRecPtr(prev+offNameNext, next)
	}
	binding, err := db.GetRecPtr(rec + offNameBinding)
	if err != nil {
		return err
	}
	role, err := db.GetByte(rec + offNameRole)
	if err != nil {
		return err
	}
	return db.PutRecPtr(binding+firstNameOffset(sema.Role(role)), next)
}

// Occurrences returns the recorded names of b with the given roles (all
// roles when none are given), ordered by file, line and column.
func (b *bindingBase) Occurrences(roles ...sema.Role) ([]Occurrence, error) {
	if len(roles) == 0 {
		roles = []sema.Role{sema.RoleDeclaration, sema.RoleDefinition, sema.RoleReference}
	}
	db := b.db()
	paths := map[database.Ptr]string{}
	var out []Occurrence
	for _, role := range roles {
		rec, err := b.firstName(role)
		if err != nil {
			return nil, err
		}
		for i := 0; rec != 0; i++ {
			if i > maxListLength {
				return nil, corrupt("binding names", b.record)
			}
			occ, err := readOccurrence(db, rec, paths)
			if err != nil {
				return nil, err
			}
			out = append(out, occ)
			if rec, err = db.GetRecPtr(rec + offNameNext); err != nil {
				return nil, err
			}
		}
	}
	slices.SortFunc(out, func(a, b Occurrence) int {
		return cmp.Or(
			cmp.Compare(a.File, b.File),
			cmp.Compare(a.Line, b.Line),
			cmp.Compare(a.Col, b.Col),
		)
	})
	return out, nil
}

func readOccurrence(db *database.Database, rec database.Ptr, paths map[database.Ptr]string) (Occurrence, error) {
	fileRec, err := db.GetRecPtr(rec + offNameFile)
	if err != nil {
		return Occurrence{}, err
	}
	path, ok := paths[fileRec]
	if !ok {
		if path, err = (&File{db: db, record: fileRec}).Path(); err != nil {
			return Occurrence{}, err
		}
		paths[fileRec] = path
	}
	line, err := db.GetInt(rec + offNameLine)
	if err != nil {
		return Occurrence{}, err
	}
	col, err := db.GetInt(rec + offNameCol)
	if err != nil {
		return Occurrence{}, err
	}
	role, err := db.GetByte(rec + offNameRole)
	if err != nil {
		return Occurrence{}, err
	}
	return Occurrence{File: path, Line: int(line), Col: int(col), Role: sema.Role(role)}, nil
}
