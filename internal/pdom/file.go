package pdom

import (
	"github.com/jward/pdom/internal/database"
)

// File record.
const (
	offFilePath      = nodeRecordSize
	offFileFirstName = offFilePath + database.PtrSize
	fileRecordSize   = offFileFirstName + database.PtrSize
)

// Header root slots: the linkage list head and the files B-tree.
const (
	rootLinkages = 0
	rootFiles    = 1
)

// File is an indexed source file. File-local bindings point at it and it
// heads the list of name occurrences recorded for the file.
type File struct {
	db     *database.Database
	record database.Ptr
}

func (f *File) Record() database.Ptr { return f.record }
func (f *File) NodeType() NodeType   { return NodeFile }

// Path returns the path the file was indexed under.
func (f *File) Path() (string, error) {
	rec, err := f.db.GetRecPtr(f.record + offFilePath)
	if err != nil || rec == 0 {
		return "", err
	}
	return database.GetString(f.db, rec).String()
}

func (f *File) firstName() (database.Ptr, error) {
	return f.db.GetRecPtr(f.record + offFileFirstName)
}

// Delete frees the path string and the record. Names must have been
// cleared.
func (f *File) Delete() error {
	rec, err := f.db.GetRecPtr(f.record + offFilePath)
	if err != nil {
		return err
	}
	if err := database.GetString(f.db, rec).Delete(); err != nil {
		return err
	}
	return f.db.Free(f.record)
}

type fileComparator struct{ db *database.Database }

func (c fileComparator) Compare(r1, r2 database.Ptr) (int, error) {
	p1, err := (&File{db: c.db, record: r1}).Path()
	if err != nil {
		return 0, err
	}
	p2, err := (&File{db: c.db, record: r2}).Path()
	if err != nil {
		return 0, err
	}
	return database.CompareChars(p1, p2, true), nil
}

type fileFinder struct {
	db    *database.Database
	path  string
	found database.Ptr
}

func (f *fileFinder) Compare(rec database.Ptr) (int, error) {
	p, err := (&File{db: f.db, record: rec}).Path()
	if err != nil {
		return 0, err
	}
	return database.CompareChars(p, f.path, true), nil
}

func (f *fileFinder) Visit(rec database.Ptr) (bool, error) {
	f.found = rec
	return false, nil
}

func (p *PDOM) fileIndex() *database.BTree {
	return database.NewBTree(p.db, database.RootSlot(rootFiles), fileComparator{db: p.db})
}

// findFile returns the file indexed under path, or nil.
func (p *PDOM) findFile(path string) (*File, error) {
	v := &fileFinder{db: p.db, path: path}
	if err := p.fileIndex().Accept(v); err != nil {
		return nil, err
	}
	if v.found == 0 {
		return nil, nil
	}
	return &File{db: p.db, record: v.found}, nil
}

// addFile returns the file for path, creating it on first use.
func (p *PDOM) addFile(path string) (*File, error) {
	if f, err := p.findFile(path); err != nil || f != nil {
		return f, err
	}
	rec, err := allocateNode(p.db, NodeFile, 0, fileRecordSize)
	if err != nil {
		return nil, err
	}
	s, err := database.NewString(p.db, path)
	if err != nil {
		p.db.Free(rec)
		return nil, err
	}
	if err := p.db.PutRecPtr(rec+offFilePath, s.Record()); err != nil {
		return nil, err
	}
	if _, err := p.fileIndex().Insert(rec); err != nil {
		return nil, err
	}
	p.logger.Debug("file added", "path", path)
	return &File{db: p.db, record: rec}, nil
}

// Files returns every file in path order.
func (p *PDOM) Files() ([]*File, error) {
	var files []*File
	err := p.fileIndex().Walk(func(rec database.Ptr) (bool, error) {
		files = append(files, &File{db: p.db, record: rec})
		return true, nil
	})
	return files, err
}

// FileRecord returns the record of the file indexed under path, or 0.
func (p *PDOM) FileRecord(path string) (database.Ptr, error) {
	f, err := p.findFile(path)
	if err != nil || f == nil {
		return 0, err
	}
	return f.record, nil
}
